// Package payment defines the external tender processor boundary. Card and
// check tenders are authorized before the sale commits and captured after;
// a failed commit voids every authorization so no money moves for a sale
// that never existed.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/agastya71/mysl-pos-project-sub005/internal/xid"
)

var ErrDeclined = errors.New("payment declined")

type Authorization struct {
	AuthID      string
	Method      string
	AmountCents int64
}

type Processor interface {
	Authorize(ctx context.Context, method string, amountCents int64, tenderToken string) (Authorization, error)
	Capture(ctx context.Context, authID string) error
	Void(ctx context.Context, authID string) error
	Refund(ctx context.Context, authID string, amountCents int64) error
}

// StubProcessor approves every tender. It stands in for a real gateway in
// development and in the memory-backed deployment mode.
type StubProcessor struct{}

func (StubProcessor) Authorize(_ context.Context, method string, amountCents int64, tenderToken string) (Authorization, error) {
	if amountCents <= 0 {
		return Authorization{}, fmt.Errorf("%w: non-positive amount %d", ErrDeclined, amountCents)
	}
	if tenderToken == "" {
		return Authorization{}, fmt.Errorf("%w: missing tender token", ErrDeclined)
	}
	return Authorization{
		AuthID:      xid.New("auth"),
		Method:      method,
		AmountCents: amountCents,
	}, nil
}

func (StubProcessor) Capture(context.Context, string) error { return nil }

func (StubProcessor) Void(context.Context, string) error { return nil }

func (StubProcessor) Refund(context.Context, string, int64) error { return nil }
