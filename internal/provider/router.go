package provider

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

// Provider delivers a notification on one channel.
type Provider interface {
	Send(ctx context.Context, notification domain.Notification) (*Receipt, error)
}

// Receipt is what a provider reports back for a successful send. It is
// stored on the delivery attempt.
type Receipt struct {
	StatusCode int
	Body       string
	MessageID  string
}

// Router dispatches a notification to the provider of its channel.
type Router struct {
	providers map[domain.Channel]Provider
	disabled  map[domain.Channel]bool
}

func NewRouter() *Router {
	return &Router{
		providers: make(map[domain.Channel]Provider),
		disabled:  make(map[domain.Channel]bool),
	}
}

// Register binds a provider to a channel. A disabled channel keeps its
// provider but every send fails permanently.
func (r *Router) Register(channel domain.Channel, p Provider, enabled bool) *Router {
	r.providers[channel] = p
	r.disabled[channel] = !enabled
	return r
}

func (r *Router) Enabled(channel domain.Channel) bool {
	_, ok := r.providers[channel]
	return ok && !r.disabled[channel]
}

func (r *Router) Send(ctx context.Context, notification domain.Notification) (*Receipt, error) {
	p, ok := r.providers[notification.Channel]
	if !ok {
		return nil, channelDisabled(fmt.Sprintf("no provider for channel %s", notification.Channel))
	}
	if r.disabled[notification.Channel] {
		return nil, channelDisabled(notification.Channel.String())
	}
	return p.Send(ctx, notification)
}
