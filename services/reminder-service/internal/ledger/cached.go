package ledger

import "context"

// Cached answers repeat claims from memory and only asks the backing store
// about entries this process has not seen.
type Cached struct {
	cache   *Memory
	backing Ledger
}

func NewCached(backing Ledger) *Cached {
	return &Cached{cache: NewMemory(), backing: backing}
}

func (c *Cached) Claim(ctx context.Context, appointmentID, label string) (bool, error) {
	if seen, _ := c.cache.Contains(ctx, appointmentID, label); seen {
		return false, nil
	}
	ok, err := c.backing.Claim(ctx, appointmentID, label)
	if err != nil {
		return false, err
	}
	// Whether we won or another instance did, the entry now exists.
	_, _ = c.cache.Claim(ctx, appointmentID, label)
	return ok, nil
}

func (c *Cached) Contains(ctx context.Context, appointmentID, label string) (bool, error) {
	if seen, _ := c.cache.Contains(ctx, appointmentID, label); seen {
		return true, nil
	}
	return c.backing.Contains(ctx, appointmentID, label)
}

func (c *Cached) Reset(ctx context.Context) error {
	if err := c.backing.Reset(ctx); err != nil {
		return err
	}
	return c.cache.Reset(ctx)
}
