package governor

import (
	"context"
	"fmt"
)

// PermitPool bounds how many upstream calls run at once. Acquire blocks
// until a slot frees or ctx ends; the returned release is safe to call more
// than once.
type PermitPool struct {
	slots chan struct{}
}

func NewPermitPool(size int) *PermitPool {
	if size <= 0 {
		size = 1
	}
	return &PermitPool{slots: make(chan struct{}, size)}
}

func (p *PermitPool) Acquire(ctx context.Context) (func(), error) {
	if p == nil {
		return func() {}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-p.slots
	}, nil
}

// InUse reports how many permits are currently held.
func (p *PermitPool) InUse() int {
	if p == nil {
		return 0
	}
	return len(p.slots)
}

// Capacity reports the pool size.
func (p *PermitPool) Capacity() int {
	if p == nil {
		return 0
	}
	return cap(p.slots)
}

func (p *PermitPool) String() string {
	return fmt.Sprintf("permits %d/%d", p.InUse(), p.Capacity())
}
