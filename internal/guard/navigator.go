package guard

import (
	"context"
	"sync"
)

// Navigator serializes navigations for one client. Starting a navigation cancels the one
// still being evaluated, whose caller then gets ErrSuperseded.
type Navigator struct {
	guard *Guard

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	location string
}

// NewNavigator wraps g. The client starts at start.
func NewNavigator(g *Guard, start string) *Navigator {
	return &Navigator{guard: g, location: start}
}

// Navigate evaluates path and, unless superseded, moves the client to the decision's
// location.
func (n *Navigator) Navigate(ctx context.Context, path string) (Decision, error) {
	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.seq++
	seq := n.seq
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.mu.Unlock()
	defer cancel()

	d, err := n.guard.Evaluate(ctx, path)

	n.mu.Lock()
	defer n.mu.Unlock()
	if seq != n.seq {
		return Decision{}, ErrSuperseded
	}
	n.cancel = nil
	if err != nil {
		return Decision{}, err
	}
	n.location = d.Location
	return d, nil
}

// Location is where the last completed navigation left the client.
func (n *Navigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

// Logout clears permissions and signs out, then abandons any navigation in flight and
// returns the client to the login page.
func (n *Navigator) Logout(ctx context.Context) error {
	err := n.guard.Logout(ctx)
	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.seq++
	n.location = n.guard.loginPath
	n.mu.Unlock()
	return err
}
