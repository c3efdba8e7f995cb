package provider

import (
	"context"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
)

// Local connects an in-process viewer to a provider
type Local struct {
	p *Provider
}

// Local returns the in-process transport for p
func (p *Provider) Local() *Local {
	return &Local{p: p}
}

// Send dispatches an inbound message
func (l *Local) Send(ctx context.Context, msg domain.Message) error {
	return l.p.Handle(ctx, msg)
}

// Subscribe streams outbound messages published from now on until ctx is
// done or the hub closes.
func (l *Local) Subscribe(ctx context.Context) (<-chan domain.Message, error) {
	id, ch := l.p.hub.Subscribe(logs.Filter{})
	out := make(chan domain.Message, constants.DefaultSubscriptionBuffer)

	go func() {
		defer close(out)
		defer l.p.hub.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- entry.Message:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
