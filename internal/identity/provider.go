package identity

import (
	"context"
	"strings"
	"sync"
)

// Identity is the connected account, if any.
type Identity struct {
	Account string
}

func (i Identity) Present() bool {
	return i.Account != ""
}

// Same reports whether two identities name the same account (case-insensitive hex).
func (i Identity) Same(other Identity) bool {
	return strings.EqualFold(i.Account, other.Account)
}

// Provider supplies the current identity and pushes changes.
// Connect and Disconnect only trigger a change; callers react to Changes.
type Provider interface {
	Current() Identity
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Changes() <-chan Identity
}

// notifier keeps the latest identity and a one-slot change channel where newer values replace older ones.
type notifier struct {
	mu      sync.Mutex
	current Identity
	changes chan Identity
}

func newNotifier() *notifier {
	return &notifier{changes: make(chan Identity, 1)}
}

func (n *notifier) Current() Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *notifier) Changes() <-chan Identity {
	return n.changes
}

func (n *notifier) set(next Identity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current.Same(next) {
		return
	}
	n.current = next
	select {
	case <-n.changes:
	default:
	}
	n.changes <- next
}
