package blockchain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Receipt identifies a confirmed payout on chain.
type Receipt struct {
	Reference string
}

// Transferer moves pooled escrow funds. Errors wrap apperr.ErrTransferFailed
// when nothing moved, or apperr.ErrTransferOutcomeUnknown when the request
// may have been applied. QueryReceipt returns apperr.ErrReceiptNotFound when
// the escrow has not been paid out.
type Transferer interface {
	Transfer(ctx context.Context, escrowAccount string, destination string, amount decimal.Decimal) (Receipt, error)
	QueryReceipt(ctx context.Context, escrowAccount string) (Receipt, error)
}
