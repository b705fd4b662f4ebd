// Package nop provides the publisher used when no event stream is configured.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/switchboard/pkg/eventstream"
)

// Publisher accepts call events and discards them, keeping only a count.
type Publisher struct {
	accepted atomic.Uint64
}

var _ eventstream.Publisher = (*Publisher)(nil)

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishCall rejects nil events and drops everything else.
func (p *Publisher) PublishCall(_ context.Context, event *eventstream.CallLoggedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	p.accepted.Add(1)
	return nil
}

// Accepted returns how many events were handed to the publisher.
func (p *Publisher) Accepted() uint64 {
	return p.accepted.Load()
}

func (p *Publisher) Close() error {
	return nil
}
