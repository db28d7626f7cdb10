package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/hyperescrow/params"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/account"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperescrow/pkg/app/ledger"
	"github.com/uhyunpark/hyperescrow/pkg/crypto"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
	"github.com/uhyunpark/hyperescrow/pkg/util"
)

type testServer struct {
	*httptest.Server
	api      *Server
	ledger   *ledger.Ledger
	verifier *transaction.Verifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := params.Default()

	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := zaptest.NewLogger(t)
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	bank := account.NewBank(store, ledger.CustodyOf(cfg.Ledger))
	l, err := ledger.New(cfg.Ledger, store, bank, clock, log)
	require.NoError(t, err)

	v := transaction.NewVerifier(ledger.Domain(cfg.Ledger))
	d := ledger.NewDispatcher(l, bank, v, log)
	s := NewServer(Config{
		ChainID:        cfg.Ledger.ChainID,
		EnableFaucet:   true,
		AllowedOrigins: cfg.Node.AllowedOrigins,
	}, l, bank, d, log)

	stop := s.StartHub(context.Background())
	t.Cleanup(stop)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, api: s, ledger: l, verifier: v}
}

func (ts *testServer) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) post(t *testing.T, path string, body interface{}, out interface{}) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) submit(t *testing.T, signer *crypto.Signer, a *transaction.Action, out interface{}) int {
	t.Helper()
	tx, err := ts.verifier.Sign(signer, a)
	require.NoError(t, err)
	return ts.post(t, "/api/v1/tx", tx, out)
}

func TestHealthAndParams(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	_ = resp.Body.Close()

	var p ParamsInfo
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/params", &p))
	require.Equal(t, params.DevAdmin.Hex(), p.Admin)
	require.EqualValues(t, 2, p.FeeRate)
	require.EqualValues(t, 100, p.Precision)
	require.EqualValues(t, 60, p.MaxDuration)

	var assets []AssetInfo
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/assets", &assets))
	require.Len(t, assets, 2)
	require.Equal(t, "USDC", assets[0].Symbol)

	var a AssetInfo
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/assets/index/1", &a))
	require.Equal(t, params.DevWETH.Hex(), a.Address)

	var e ErrorResponse
	require.Equal(t, http.StatusNotFound, ts.get(t, "/api/v1/assets/index/9", &e))
	require.Equal(t, "InvalidIndex", e.Code)
}

func TestSubmitFlow(t *testing.T) {
	ts := newTestServer(t)
	alice, err := crypto.GenerateKey()
	require.NoError(t, err)

	var bal BalanceInfo
	require.Equal(t, http.StatusOK, ts.post(t, "/api/v1/faucet",
		FaucetRequest{Address: alice.Address().Hex(), Asset: params.DevWETH.Hex(), Amount: "2"}, &bal))
	require.Equal(t, "2", bal.Display)

	amount, _ := util.ParseAmount("1.5", 18)
	price, _ := util.ParseAmount("3000", 18)

	// No allowance yet: the pull into custody fails.
	var e ErrorResponse
	require.Equal(t, http.StatusUnprocessableEntity, ts.submit(t, alice, &transaction.Action{
		Type: transaction.ActionCreate, Nonce: 1, Asset: params.DevWETH, Amount: amount, Price: price, Duration: 30,
	}, &e))
	require.Equal(t, "TransferFailed", e.Code)

	var res SubmitResponse
	require.Equal(t, http.StatusOK, ts.submit(t, alice, &transaction.Action{
		Type: transaction.ActionApprove, Nonce: 2, Asset: params.DevWETH, Amount: amount,
	}, &res))
	require.Equal(t, http.StatusOK, ts.submit(t, alice, &transaction.Action{
		Type: transaction.ActionCreate, Nonce: 3, Asset: params.DevWETH, Amount: amount, Price: price, Duration: 30,
	}, &res))
	require.EqualValues(t, 1, res.OrderID)

	var sum OrderSummary
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/orders/1/summary", &sum))
	require.Equal(t, "WETH", sum.AssetSymbol)
	require.Equal(t, "1.5", sum.Amount)
	require.Equal(t, "3000", sum.Price)
	require.Equal(t, "active", sum.Status)

	var orders []OrderInfo
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/accounts/"+alice.Address().Hex()+"/orders", &orders))
	require.Len(t, orders, 1)

	// Replaying a used nonce.
	require.Equal(t, http.StatusConflict, ts.submit(t, alice, &transaction.Action{
		Type: transaction.ActionCancel, Nonce: 3, OrderID: 1,
	}, &e))

	require.Equal(t, http.StatusOK, ts.submit(t, alice, &transaction.Action{
		Type: transaction.ActionCancel, Nonce: 4, OrderID: 1,
	}, &res))
	require.Equal(t, http.StatusConflict, ts.submit(t, alice, &transaction.Action{
		Type: transaction.ActionCancel, Nonce: 5, OrderID: 1,
	}, &e))
	require.Equal(t, "OrderInactive", e.Code)

	var page EventsPage
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/events?from=1&limit=10", &page))
	// Two genesis AssetAllowed, then created and cancelled.
	require.Len(t, page.Events, 4)
	require.EqualValues(t, 5, page.Next)

	var status LedgerStatus
	require.Equal(t, http.StatusOK, ts.get(t, "/api/v1/ledger/status", &status))
	require.EqualValues(t, 2, status.NextOrderID)
	require.Empty(t, status.Custody)
	require.NoError(t, ts.ledger.CheckInvariants(context.Background()))
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	var e ErrorResponse
	require.Equal(t, http.StatusNotFound, ts.get(t, "/api/v1/orders/42", &e))
	require.Equal(t, "InvalidOrder", e.Code)

	require.Equal(t, http.StatusBadRequest, ts.get(t, "/api/v1/orders/abc", &e))
	require.Equal(t, http.StatusBadRequest, ts.get(t, "/api/v1/accounts/nothex/orders", &e))
	require.Equal(t, http.StatusBadRequest, ts.get(t, "/api/v1/events?limit=0", &e))

	resp, err := http.Post(ts.URL+"/api/v1/tx", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	mallory, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx, err := ts.verifier.Sign(mallory, &transaction.Action{Type: transaction.ActionCancel, Nonce: 1, OrderID: 1})
	require.NoError(t, err)
	tx.Action.Signer = params.DevAdmin.Hex()
	require.Equal(t, http.StatusUnauthorized, ts.post(t, "/api/v1/tx", tx, &e))

	malformed := []struct {
		name   string
		mutate func(tx *transaction.SignedAction)
	}{
		{"non-hex signature", func(tx *transaction.SignedAction) { tx.Signature = "0xzz" }},
		{"short signature", func(tx *transaction.SignedAction) { tx.Signature = "0x0102" }},
		{"bad signer", func(tx *transaction.SignedAction) { tx.Action.Signer = "nothex" }},
		{"bad amount", func(tx *transaction.SignedAction) { tx.Action.Amount = "abc" }},
	}
	for _, tt := range malformed {
		tx, err := ts.verifier.Sign(mallory, &transaction.Action{
			Type: transaction.ActionCreate, Nonce: 1, Asset: params.DevUSDC,
			Amount: uint256.NewInt(1), Price: uint256.NewInt(1), Duration: 10,
		})
		require.NoError(t, err)
		tt.mutate(tx)
		e = ErrorResponse{}
		require.Equal(t, http.StatusBadRequest, ts.post(t, "/api/v1/tx", tx, &e), tt.name)
		require.Equal(t, "invalid action", e.Error, tt.name)
	}

	require.Equal(t, http.StatusForbidden, ts.submit(t, mallory, &transaction.Action{
		Type: transaction.ActionWithdrawFees, Nonce: 2, Asset: params.DevUSDC, To: mallory.Address(),
	}, &e))
	require.Equal(t, "Unauthorized", e.Code)

	for code, want := range map[string]int{
		"InvalidIndex":      http.StatusNotFound,
		"InvalidSender":     http.StatusForbidden,
		"InsufficientFunds": http.StatusPaymentRequired,
		"InvalidAmount":     http.StatusBadRequest,
	} {
		require.Equal(t, want, statusOf(errcode.Code(code)), code)
	}
}

func TestCORSOrigins(t *testing.T) {
	ts := newTestServer(t)

	preflight := func(origin string) http.Header {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/tx", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.Header
	}

	h := preflight("http://localhost:3000")
	require.Equal(t, "http://localhost:3000", h.Get("Access-Control-Allow-Origin"))
	require.Empty(t, h.Get("Access-Control-Allow-Credentials"))

	h = preflight("https://elsewhere.example")
	require.Empty(t, h.Get("Access-Control-Allow-Origin"))
}

func TestHubRoutesEvents(t *testing.T) {
	ts := newTestServer(t)
	hub := ts.api.hub

	seller := common.HexToAddress("0x0000000000000000000000000000000000005e11")
	c := &Client{hub: hub, send: make(chan []byte, 8), subscriptions: make(map[string]bool), id: "test"}
	// Lower-case addresses are normalized to the checksummed channel.
	c.Subscribe("account:" + common.Bytes2Hex(seller.Bytes()))
	hub.mu.Lock()
	hub.clients[c] = true
	hub.mu.Unlock()

	ev := eventFor(seller)
	hub.Publish(ev)

	select {
	case msg := <-c.send:
		var m EventMessage
		require.NoError(t, json.Unmarshal(msg, &m))
		require.Equal(t, "account:"+seller.Hex(), m.Channel)
		require.Equal(t, ev.OrderID, m.Event.OrderID)
	default:
		t.Fatal("no message routed to subscriber")
	}

	c.Unsubscribe("account:" + seller.Hex())
	hub.Publish(ev)
	require.Len(t, c.send, 0)
}

func TestWebSocketUpgrade(t *testing.T) {
	ts := newTestServer(t)

	url := "ws" + ts.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"orders"}}))
}

func eventFor(seller common.Address) *events.Event {
	return events.NewOrderCancelled(1, 7, seller, uint256.NewInt(5))
}
