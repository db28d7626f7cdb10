// Package api serves the ledger over REST and pushes committed events to
// WebSocket subscribers.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/account"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/order"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperescrow/pkg/app/ledger"
	"github.com/uhyunpark/hyperescrow/pkg/util"
)

var mon = monkit.Package()

// Error is the class of API server failures.
var Error = errs.Class("api")

const maxBodyBytes = 1 << 20

// Config holds server options.
type Config struct {
	ChainID        int64
	EnableFaucet   bool
	AllowedOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg        Config
	ledger     *ledger.Ledger
	bank       *account.Bank
	dispatcher *ledger.Dispatcher
	router     *mux.Router
	hub        *Hub // WebSocket hub
	log        *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(cfg Config, l *ledger.Ledger, bank *account.Bank, d *ledger.Dispatcher, logger *zap.Logger) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	s := &Server{
		cfg:        cfg,
		ledger:     l,
		bank:       bank,
		dispatcher: d,
		router:     mux.NewRouter(),
		hub:        NewHub(logger.Named("ws")),
		log:        logger.Sugar(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Ledger endpoints
	api.HandleFunc("/params", s.handleGetParams).Methods("GET")
	api.HandleFunc("/ledger/status", s.handleGetStatus).Methods("GET")
	api.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	// Asset endpoints
	api.HandleFunc("/assets", s.handleGetAssets).Methods("GET")
	api.HandleFunc("/assets/index/{index}", s.handleGetAssetByIndex).Methods("GET")
	api.HandleFunc("/assets/{address}", s.handleGetAsset).Methods("GET")

	// Order endpoints
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/summary", s.handleGetSummary).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/balances/{asset}", s.handleGetBalance).Methods("GET")

	// Fees and events
	api.HandleFunc("/fees", s.handleGetFees).Methods("GET")
	api.HandleFunc("/fees/{asset}", s.handleGetFee).Methods("GET")
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")

	// Action submission
	api.HandleFunc("/tx", s.handleSubmit).Methods("POST")
	if s.cfg.EnableFaucet {
		api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")
	}

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
	})
	return c.Handler(s.router)
}

// Run serves on addr until ctx is cancelled. The hub is fed from the
// ledger's event bus for as long as the server runs.
func (s *Server) Run(ctx context.Context, addr string) error {
	stopHub := s.StartHub(ctx)
	defer stopHub()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return Error.Wrap(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if e := <-errc; !errors.Is(e, http.ErrServerClosed) {
		err = errs.Combine(err, e)
	}
	return Error.Wrap(err)
}

// StartHub starts the WebSocket hub and feeds it committed ledger events
// until stop is called or ctx is done.
func (s *Server) StartHub(ctx context.Context) (stop func()) {
	hubCtx, cancel := context.WithCancel(ctx)
	unsubscribe := s.ledger.Bus().Subscribe(s.hub.Publish)
	go s.hub.Run(hubCtx)
	return func() {
		unsubscribe()
		cancel()
	}
}

// requestID tags every request with an X-Request-ID and logs its outcome.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if r.URL.Path == "/ws" {
			return
		}
		s.log.Debugw("http_request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	l := s.ledger
	respondJSON(w, ParamsInfo{
		Admin:          l.Admin().Hex(),
		Custody:        l.CustodyAccount().Hex(),
		ReferenceAsset: l.ReferenceAsset().Hex(),
		FeeRate:        l.FeeRate(),
		Precision:      l.Precision(),
		MaxDuration:    l.MaxDuration(),
		Decimals:       l.Decimals(),
		ChainID:        s.cfg.ChainID,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hash, err := s.ledger.StateHash(ctx)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	next, err := s.ledger.NextOrderID(ctx)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	seq, err := s.ledger.LastEventSeq(ctx)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	holdings, err := s.ledger.Holdings(ctx)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	fees, err := s.ledger.Fees(ctx)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	status := LedgerStatus{
		StateHash:    hash.Hex(),
		NextOrderID:  next,
		LastEventSeq: seq,
		Now:          s.ledger.Now(),
		Custody:      make([]AmountInfo, 0, len(holdings)),
		Fees:         make([]AmountInfo, 0, len(fees)),
	}
	for _, h := range holdings {
		status.Custody = append(status.Custody, s.amountInfo(ctx, h.Asset, h.Amount))
	}
	for _, f := range fees {
		status.Fees = append(status.Fees, s.amountInfo(ctx, f.Asset, f.Amount))
	}
	respondJSON(w, status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]float64)
	monkit.Default.Stats(func(key monkit.SeriesKey, field string, val float64) {
		stats[key.WithField(field)] = val
	})
	respondJSON(w, stats)
}

func (s *Server) handleGetAssets(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.Assets(r.Context())
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	out := make([]AssetInfo, len(list))
	for i, a := range list {
		out[i] = AssetInfo{Address: a.ID.Hex(), Symbol: a.Symbol, Index: a.Index}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetAssetByIndex(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid index", err.Error())
		return
	}
	a, err := s.ledger.AssetByIndex(r.Context(), index)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, AssetInfo{Address: a.ID.Hex(), Symbol: a.Symbol, Index: a.Index})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	a, err := s.ledger.Asset(r.Context(), addr)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, AssetInfo{Address: a.ID.Hex(), Symbol: a.Symbol, Index: a.Index})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDVar(w, r)
	if !ok {
		return
	}
	o, err := s.ledger.Order(r.Context(), id)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, s.orderInfo(o))
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDVar(w, r)
	if !ok {
		return
	}
	sum, err := s.ledger.Summary(r.Context(), id)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, OrderSummary{
		ID:          sum.ID,
		AssetSymbol: sum.AssetSymbol,
		Seller:      sum.Seller.Hex(),
		Amount:      s.display(sum.Amount),
		Price:       s.display(sum.Price),
		Expiry:      sum.Expiry,
		Status:      string(sum.Status),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	acc, err := s.bank.Account(addr)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	info := AccountInfo{
		Address:  acc.Address.Hex(),
		Nonce:    acc.Nonce,
		Balances: make([]AmountInfo, 0, len(acc.Balances)),
	}
	for _, b := range acc.Balances {
		info.Balances = append(info.Balances, s.amountInfo(r.Context(), b.Asset, b.Amount))
	}
	respondJSON(w, info)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	orders, err := s.ledger.OrdersBySeller(r.Context(), addr)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = s.orderInfo(o)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	asset, ok := addressVar(w, r, "asset")
	if !ok {
		return
	}
	bal, err := s.bank.Balance(asset, addr)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	allowance, err := s.bank.Allowance(addr, s.ledger.CustodyAccount(), asset)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{
		Address:    addr.Hex(),
		AmountInfo: s.amountInfo(r.Context(), asset, bal),
		Allowance:  allowance.Dec(),
	})
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	fees, err := s.ledger.Fees(r.Context())
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	out := make([]AmountInfo, 0, len(fees))
	for _, f := range fees {
		out = append(out, s.amountInfo(r.Context(), f.Asset, f.Amount))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetFee(w http.ResponseWriter, r *http.Request) {
	asset, ok := addressVar(w, r, "asset")
	if !ok {
		return
	}
	amt, err := s.ledger.AccruedFees(r.Context(), asset)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, s.amountInfo(r.Context(), asset, amt))
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, limit := uint64(1), 100
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from", err.Error())
			return
		}
		from = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "invalid limit", "limit must be in 1..1000")
			return
		}
		limit = n
	}

	evs, err := s.ledger.Events(r.Context(), from, limit)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	next := from
	if len(evs) > 0 {
		next = evs[len(evs)-1].Seq + 1
	}
	respondJSON(w, EventsPage{Events: evs, Next: next})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer mon.Task()(&ctx)(nil)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	tx, err := transaction.Parse(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid action", err.Error())
		return
	}

	receipt, err := s.dispatcher.Submit(ctx, tx)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	resp := SubmitResponse{
		Status:  "accepted",
		Type:    string(receipt.Type),
		Signer:  receipt.Signer.Hex(),
		Nonce:   receipt.Nonce,
		OrderID: receipt.OrderID,
	}
	if out := receipt.Outcome; out != nil {
		resp.Outcome = &OutcomeInfo{
			Expired:        out.Expired,
			FeeRef:         decString(out.FeeRef),
			FeeAsset:       decString(out.FeeAsset),
			BuyerReceives:  decString(out.BuyerReceives),
			SellerReceives: decString(out.SellerReceives),
		}
	}
	if a := receipt.Asset; a != nil {
		resp.Asset = &AssetInfo{Address: a.ID.Hex(), Symbol: a.Symbol, Index: a.Index}
	}
	respondJSON(w, resp)
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) || !common.IsHexAddress(req.Asset) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	amount, err := util.ParseAmount(req.Amount, s.ledger.Decimals())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	to, asset := common.HexToAddress(req.Address), common.HexToAddress(req.Asset)

	allowed, err := s.ledger.IsAllowed(r.Context(), asset)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	if !allowed {
		respondError(w, http.StatusBadRequest, "asset not registered", string(errcode.InvalidAsset))
		return
	}
	if err := s.bank.Mint(asset, to, amount); err != nil {
		s.respondLedgerError(w, err)
		return
	}

	s.log.Infow("faucet_mint", "to", to.Hex(), "asset", asset.Hex(), "amount", req.Amount)
	bal, err := s.bank.Balance(asset, to)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Address: to.Hex(), AmountInfo: s.amountInfo(r.Context(), asset, bal)})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) display(amt *uint256.Int) string {
	return util.FormatAmount(amt, s.ledger.Decimals())
}

func (s *Server) amountInfo(ctx context.Context, asset common.Address, amt *uint256.Int) AmountInfo {
	info := AmountInfo{Asset: asset.Hex(), Amount: amt.Dec(), Display: s.display(amt)}
	if a, err := s.ledger.Asset(ctx, asset); err == nil {
		info.Symbol = a.Symbol
	}
	return info
}

func (s *Server) orderInfo(o *order.Order) OrderInfo {
	return OrderInfo{
		ID:            o.ID,
		Seller:        o.Seller.Hex(),
		Asset:         o.Asset.Hex(),
		Amount:        o.Amount.Dec(),
		AmountDisplay: s.display(o.Amount),
		Price:         o.Price.Dec(),
		PriceDisplay:  s.display(o.Price),
		Expiry:        o.Expiry,
		Active:        o.Active,
		Status:        string(o.Status(s.ledger.Now())),
	}
}

// respondLedgerError maps a ledger, bank or signature error to an HTTP
// status.
func (s *Server) respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transaction.ErrInvalidSignature):
		respondError(w, http.StatusUnauthorized, "invalid signature", err.Error())
		return
	case errors.Is(err, transaction.ErrInvalidAction):
		respondError(w, http.StatusBadRequest, "invalid action", err.Error())
		return
	case errors.Is(err, account.ErrStaleNonce):
		respondError(w, http.StatusConflict, "stale nonce", err.Error())
		return
	}

	code := errcode.CodeOf(err)
	if code == "" {
		s.log.Errorw("internal_error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(code))
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "rejected", Code: string(code), Message: err.Error()})
}

func statusOf(code errcode.Code) int {
	switch code {
	case errcode.InvalidOrder, errcode.InvalidIndex:
		return http.StatusNotFound
	case errcode.Unauthorized, errcode.InvalidSender:
		return http.StatusForbidden
	case errcode.OrderInactive:
		return http.StatusConflict
	case errcode.InsufficientFunds:
		return http.StatusPaymentRequired
	case errcode.TransferFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	s := mux.Vars(r)[name]
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func orderIDVar(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return 0, false
	}
	return id, true
}

func decString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
