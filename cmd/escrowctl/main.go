// Command escrowctl signs escrow actions and optionally submits them to a
// node.
//
//	escrowctl -key $KEY -action create -asset 0x..e7e1 -amount 1 -price 2000 -duration 40 -submit http://localhost:8080
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/params"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperescrow/pkg/app/ledger"
	"github.com/uhyunpark/hyperescrow/pkg/crypto"
	"github.com/uhyunpark/hyperescrow/pkg/util"
)

func main() {
	var (
		keyHex   = flag.String("key", os.Getenv("ESCROW_KEY"), "private key hex (generated when empty)")
		action   = flag.String("action", "create", "create|amend|cancel|fulfill|register_asset|withdraw_fees|approve")
		nonce    = flag.Uint64("nonce", 0, "action nonce (0 = last used + 1, fetched from -submit)")
		orderID  = flag.Uint64("order", 0, "order id")
		asset    = flag.String("asset", "", "asset address")
		amount   = flag.String("amount", "", "amount in display units")
		price    = flag.String("price", "", "price in display units of the reference asset")
		duration = flag.Uint64("duration", 0, "order lifetime in seconds")
		deadline = flag.Bool("update-deadline", false, "amend: re-anchor expiry to now+duration")
		to       = flag.String("to", "", "withdraw_fees recipient")
		symbol   = flag.String("symbol", "", "register_asset symbol")
		submit   = flag.String("submit", "", "node URL to POST the signed action to")
		typed    = flag.Bool("typed-data", false, "print the EIP-712 typed data instead of the envelope")
	)
	flag.Parse()

	cfg := params.LoadFromEnv("")

	signer, err := loadSigner(*keyHex)
	if err != nil {
		fatalf("key: %v", err)
	}

	a := &transaction.Action{
		Type:           transaction.ActionType(*action),
		Signer:         signer.Address(),
		Nonce:          *nonce,
		OrderID:        *orderID,
		Duration:       *duration,
		UpdateDeadline: *deadline,
		Symbol:         *symbol,
	}
	if a.Asset, err = optionalAddress(*asset); err != nil {
		fatalf("asset: %v", err)
	}
	if a.To, err = optionalAddress(*to); err != nil {
		fatalf("to: %v", err)
	}
	if a.Amount, err = optionalAmount(*amount, cfg.Ledger.AmountDecimals); err != nil {
		fatalf("amount: %v", err)
	}
	if a.Price, err = optionalAmount(*price, cfg.Ledger.AmountDecimals); err != nil {
		fatalf("price: %v", err)
	}

	if a.Nonce == 0 {
		if *submit == "" {
			a.Nonce = 1
		} else if a.Nonce, err = nextNonce(*submit, signer.Address()); err != nil {
			fatalf("nonce: %v", err)
		}
	}

	domain := ledger.Domain(cfg.Ledger)
	if *typed {
		out, err := crypto.NewEIP712Signer(domain).ActionToJSON(a.ToEIP712())
		if err != nil {
			fatalf("typed data: %v", err)
		}
		fmt.Println(out)
		return
	}

	tx, err := transaction.NewVerifier(domain).Sign(signer, a)
	if err != nil {
		fatalf("sign: %v", err)
	}
	if err := tx.Validate(); err != nil {
		fatalf("invalid action: %v", err)
	}

	body, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		fatalf("marshal: %v", err)
	}
	if *submit == "" {
		fmt.Println(string(body))
		return
	}

	resp, err := http.Post(strings.TrimRight(*submit, "/")+"/api/v1/tx", "application/json", bytes.NewReader(body))
	if err != nil {
		fatalf("submit: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s %s", resp.Status, out)
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex != "" {
		return crypto.FromPrivateKeyHex(keyHex)
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "generated key %s for %s (KEEP SECRET!)\n", signer.PrivateKeyHex(), signer.Address().Hex())
	return signer, nil
}

func optionalAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not an address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func optionalAmount(s string, decimals int32) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return util.ParseAmount(s, decimals)
}

// nextNonce asks the node for the signer's last used nonce.
func nextNonce(node string, addr common.Address) (uint64, error) {
	resp, err := http.Get(strings.TrimRight(node, "/") + "/api/v1/accounts/" + addr.Hex())
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("account lookup: %s", resp.Status)
	}
	var acc struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		return 0, err
	}
	return acc.Nonce + 1, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "escrowctl: "+format+"\n", args...)
	os.Exit(1)
}
