package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/customeros/mailtriage/interfaces"
)

// budgetGate serializes reservations for one pass. Once a reservation is
// refused the gate stays closed so no worker starts another call.
type budgetGate struct {
	mu         sync.Mutex
	repo       interfaces.BudgetRepository
	tenant     string
	cost       int64
	dailyCap   int64
	monthlyCap int64
	now        func() time.Time
	exhausted  bool
}

func (g *budgetGate) reserve(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.exhausted {
		return false, nil
	}
	ok, err := g.repo.Reserve(ctx, g.tenant, g.now(), g.cost, g.dailyCap, g.monthlyCap)
	if err != nil {
		return false, err
	}
	if !ok {
		g.exhausted = true
	}
	return ok, nil
}

func (g *budgetGate) isExhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exhausted
}
