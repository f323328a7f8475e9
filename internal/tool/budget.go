package tool

import (
	"context"
	"sync"

	"github.com/hal9000y/sdr/internal/mailer"
)

// Budget caps the number of emails sent within one top-level request.
type Budget struct {
	mu       sync.Mutex
	limit    int
	sent     int
	refused  int
	delivery *mailer.DeliveryResult
}

type budgetKey struct{}

// WithSendBudget attaches a budget allowing limit sends to ctx.
// Send tools called without a budget in ctx are not limited.
func WithSendBudget(ctx context.Context, limit int) (context.Context, *Budget) {
	b := &Budget{limit: limit}
	return context.WithValue(ctx, budgetKey{}, b), b
}

func budgetFrom(ctx context.Context) *Budget {
	b, _ := ctx.Value(budgetKey{}).(*Budget)
	return b
}

// take reserves one send. It reports false once the limit is spent.
func (b *Budget) take() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sent >= b.limit {
		b.refused++
		return false
	}
	b.sent++
	return true
}

func (b *Budget) record(res mailer.DeliveryResult) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delivery = &res
}

// Delivery returns the accepted delivery of the request, if any.
func (b *Budget) Delivery() (mailer.DeliveryResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delivery == nil {
		return mailer.DeliveryResult{}, false
	}
	return *b.delivery, true
}

// Refused is the number of sends turned down.
func (b *Budget) Refused() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refused
}
