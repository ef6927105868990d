package location

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/trigger"
)

// Update is one provider delivery: a position fix or an error such as
// permission denied or a position timeout. Errors never terminate the
// subscription; the source logs them and keeps listening.
type Update struct {
	Position trigger.Position
	Err      error
}

// Provider abstracts the platform geolocation source feeding the
// location input. Implementations deliver updates on the returned
// channel until the context is cancelled or Unsubscribe is called, then
// close the channel.
type Provider interface {
	Subscribe(ctx context.Context) (<-chan Update, error)
	Unsubscribe()
}

// providerBuffer bounds pending updates per subscription
const providerBuffer = 16

// ManualProvider is a Provider fed programmatically. Hosts push platform
// geolocation callbacks into it with Emit; tests drive it directly.
type ManualProvider struct {
	mu  sync.Mutex
	ch  chan Update
	gen int
}

// NewManualProvider creates an unsubscribed ManualProvider
func NewManualProvider() *ManualProvider {
	return &ManualProvider{}
}

// Subscribe opens a single active subscription. A second Subscribe
// without an intervening Unsubscribe is an error.
func (p *ManualProvider) Subscribe(ctx context.Context) (<-chan Update, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("already subscribed"),
			"ManualProvider", "Subscribe", "subscription check")
	}

	p.gen++
	gen := p.gen
	ch := make(chan Update, providerBuffer)
	p.ch = ch

	go func() {
		<-ctx.Done()
		p.unsubscribeGen(gen)
	}()

	return ch, nil
}

// Unsubscribe closes the active subscription. Safe to call when nothing
// is subscribed.
func (p *ManualProvider) Unsubscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

// unsubscribeGen closes the subscription only if it is still the one the
// cancelled context belongs to
func (p *ManualProvider) unsubscribeGen(gen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.closeLocked()
	}
}

func (p *ManualProvider) closeLocked() {
	if p.ch != nil {
		close(p.ch)
		p.ch = nil
	}
}

// Emit delivers one update to the active subscription. It reports false
// when nothing is subscribed or the subscriber's buffer is full.
func (p *ManualProvider) Emit(u Update) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return false
	}
	select {
	case p.ch <- u:
		return true
	default:
		return false
	}
}
