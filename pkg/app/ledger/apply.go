package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperescrow/params"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/asset"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperescrow/pkg/crypto"
)

// Accounts is the part of the bank signed actions need directly.
type Accounts interface {
	UseNonce(addr common.Address, nonce uint64) error
	Approve(owner, spender, asset common.Address, amount *uint256.Int) error
}

// Domain returns the EIP-712 domain actions for cfg are signed under.
func Domain(cfg params.Ledger) crypto.EIP712Domain {
	return crypto.DefaultDomain(cfg.ChainID, CustodyOf(cfg))
}

// Receipt reports the result of an accepted action.
type Receipt struct {
	Type    transaction.ActionType `json:"type"`
	Signer  common.Address         `json:"signer"`
	Nonce   uint64                 `json:"nonce"`
	OrderID uint64                 `json:"orderId,omitempty"`
	Outcome *Outcome               `json:"outcome,omitempty"`
	Asset   *asset.Asset           `json:"asset,omitempty"`
}

// Dispatcher authenticates signed actions and runs them against the
// ledger with the recovered signer as caller.
type Dispatcher struct {
	ledger   *Ledger
	accounts Accounts
	verifier *transaction.Verifier
	log      *zap.SugaredLogger
}

func NewDispatcher(l *Ledger, accounts Accounts, verifier *transaction.Verifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{ledger: l, accounts: accounts, verifier: verifier, log: logger.Sugar()}
}

// Submit verifies tx, consumes its nonce, then applies it. The nonce stays
// consumed when the ledger rejects the action.
func (d *Dispatcher) Submit(ctx context.Context, tx *transaction.SignedAction) (r *Receipt, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	action, err := d.verifier.Verify(tx)
	if err != nil {
		d.log.Warnw("action_rejected", "type", tx.Action.Type, "signer", tx.Action.Signer, "error", err)
		return nil, err
	}
	if err := d.accounts.UseNonce(action.Signer, action.Nonce); err != nil {
		d.log.Warnw("action_replayed", "type", action.Type, "signer", action.Signer.Hex(), "nonce", action.Nonce, "error", err)
		return nil, err
	}

	r = &Receipt{Type: action.Type, Signer: action.Signer, Nonce: action.Nonce, OrderID: action.OrderID}
	if err := d.dispatch(ctx, action, r); err != nil {
		d.log.Infow("action_failed", "type", action.Type, "signer", action.Signer.Hex(), "nonce", action.Nonce, "error", err)
		return nil, err
	}
	return r, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, a *transaction.Action, r *Receipt) (err error) {
	l := d.ledger
	switch a.Type {
	case transaction.ActionCreate:
		r.OrderID, err = l.CreateOrder(ctx, a.Signer, a.Asset, a.Amount, a.Price, a.Duration)
	case transaction.ActionAmend:
		err = l.AmendOrder(ctx, a.Signer, a.OrderID, a.Amount, a.Price, a.UpdateDeadline, a.Duration)
	case transaction.ActionCancel:
		err = l.CancelOrder(ctx, a.Signer, a.OrderID)
	case transaction.ActionFulfill:
		r.Outcome, err = l.FulfillOrder(ctx, a.Signer, a.OrderID)
	case transaction.ActionRegisterAsset:
		r.Asset, err = l.RegisterAsset(ctx, a.Signer, a.Asset, a.Symbol)
	case transaction.ActionWithdrawFees:
		err = l.WithdrawFees(ctx, a.Signer, a.To, a.Asset, a.Amount)
	case transaction.ActionApprove:
		err = d.accounts.Approve(a.Signer, l.CustodyAccount(), a.Asset, a.Amount)
		if err == nil {
			d.log.Infow("allowance_set", "owner", a.Signer.Hex(), "asset", a.Asset.Hex(), "amount", l.format(a.Amount))
		}
	default:
		err = Error.New("unsupported action type: %s", a.Type)
	}
	return err
}
