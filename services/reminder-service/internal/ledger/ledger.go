// Package ledger records which reminder windows already fired for an
// appointment so a scan never notifies twice within one reset epoch.
package ledger

import (
	"context"
	"fmt"
)

type Ledger interface {
	// Claim atomically records (appointmentID, label) and reports whether this
	// call was the first to do so.
	Claim(ctx context.Context, appointmentID, label string) (bool, error)
	Contains(ctx context.Context, appointmentID, label string) (bool, error)
	// Reset forgets every entry, starting a new epoch.
	Reset(ctx context.Context) error
}

func key(appointmentID, label string) string {
	return appointmentID + "-" + label
}

// New builds the ledger named by backend. Durable backends are fronted by an
// in-process cache.
func New(backend string, pg *Postgres, rdb *Redis) (Ledger, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("ledger backend %q: postgres not configured", backend)
		}
		return NewCached(pg), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("ledger backend %q: redis not configured", backend)
		}
		return NewCached(rdb), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
