package txn

import (
	"context"
	"sync"
)

type hooks struct {
	mu  sync.Mutex
	fns []func()
}

type activeKey struct{}

// Begin marks ctx as running inside a transaction. The returned function runs
// the hooks registered with AfterCommit and must only be called once the
// outermost transaction has committed.
func Begin(ctx context.Context) (context.Context, func()) {
	h := &hooks{}
	return context.WithValue(ctx, activeKey{}, h), func() {
		h.mu.Lock()
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}

func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(activeKey{}).(*hooks)
	return ok
}

// AfterCommit defers fn until the enclosing transaction commits. Outside a
// transaction fn runs immediately. Hooks of a rolled back attempt are dropped.
func AfterCommit(ctx context.Context, fn func()) {
	h, ok := ctx.Value(activeKey{}).(*hooks)
	if !ok {
		fn()
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}
