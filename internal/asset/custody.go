package asset

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

// Custody is an engine's holding of one asset inside a Ledger. It exposes
// the TransferIn / TransferOut capability and builds legs for compound
// settlements.
type Custody struct {
	ledger  Ledger
	account model.Account
	asset   model.Asset
}

// NewCustody binds account's balance of asset in ledger.
func NewCustody(ledger Ledger, account model.Account, asset model.Asset) *Custody {
	return &Custody{ledger: ledger, account: account, asset: asset}
}

// Account returns the custody account.
func (c *Custody) Account() model.Account { return c.account }

// Asset returns the held asset.
func (c *Custody) Asset() model.Asset { return c.asset }

// Ledger returns the underlying ledger.
func (c *Custody) Ledger() Ledger { return c.ledger }

// Balance returns the amount currently held.
func (c *Custody) Balance() decimal.Decimal {
	return c.ledger.BalanceOf(c.asset, c.account)
}

// In builds a leg pulling amount from holder into custody.
func (c *Custody) In(holder model.Account, amount decimal.Decimal) Transfer {
	return Transfer{Asset: c.asset, From: holder, To: c.account, Amount: amount}
}

// Out builds a leg pushing amount from custody to recipient.
func (c *Custody) Out(recipient model.Account, amount decimal.Decimal) Transfer {
	return Transfer{Asset: c.asset, From: c.account, To: recipient, Amount: amount}
}

// TransferIn pulls amount from holder. Fails atomically when the holder's
// balance is insufficient.
func (c *Custody) TransferIn(ctx context.Context, holder model.Account, amount decimal.Decimal) error {
	return c.ledger.Settle(ctx, c.In(holder, amount))
}

// TransferOut pushes amount to recipient. Fails atomically when custody is
// insufficient.
func (c *Custody) TransferOut(ctx context.Context, recipient model.Account, amount decimal.Decimal) error {
	return c.ledger.Settle(ctx, c.Out(recipient, amount))
}
