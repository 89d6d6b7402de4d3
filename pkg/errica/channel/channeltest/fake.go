// Package channeltest provides an in-memory channel for tests.
package channeltest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// Fake records every event it receives. Its behaviour is programmable through
// the exported fields, which must be set before the fake is shared.
type Fake struct {
	ChannelName string

	// SendFunc, when set, produces the send result.
	SendFunc func(ctx context.Context, ev *event.Event) channel.Result
	// HealthFunc, when set, produces the health check result.
	HealthFunc func(ctx context.Context) channel.Result
	// Delay blocks every Send until it elapses or ctx is done.
	Delay time.Duration
	// CloseErr is returned by Close.
	CloseErr error

	mu     sync.Mutex
	events []*event.Event
	closed atomic.Int32
}

// New returns a fake that succeeds on every call.
func New(name string) *Fake {
	return &Fake{ChannelName: name}
}

// Failing returns a fake whose sends fail with err.
func Failing(name string, err error) *Fake {
	f := New(name)
	f.SendFunc = func(context.Context, *event.Event) channel.Result {
		return channel.Fail(err, "send failed")
	}
	f.HealthFunc = func(context.Context) channel.Result {
		return channel.Fail(err, "health check failed")
	}
	return f
}

// Name implements channel.Channel.
func (f *Fake) Name() string { return f.ChannelName }

// Send implements channel.Channel.
func (f *Fake) Send(ctx context.Context, ev *event.Event) channel.Result {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return channel.Fail(ctx.Err(), "send aborted")
		}
	}
	if f.SendFunc != nil {
		return f.SendFunc(ctx, ev)
	}
	return channel.OK("delivered")
}

// HealthCheck implements channel.Channel.
func (f *Fake) HealthCheck(ctx context.Context) channel.Result {
	if f.HealthFunc != nil {
		return f.HealthFunc(ctx)
	}
	return channel.OK("healthy")
}

// Close implements channel.Channel.
func (f *Fake) Close() error {
	f.closed.Add(1)
	return f.CloseErr
}

// Events returns the events received so far.
func (f *Fake) Events() []*event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*event.Event, len(f.events))
	copy(out, f.events)
	return out
}

// Closed returns how many times Close was called.
func (f *Fake) Closed() int { return int(f.closed.Load()) }

// Creator returns a channel.Creator that hands out the given fakes by name.
// Unknown names get a fresh succeeding fake.
func Creator(fakes ...*Fake) channel.Creator {
	byName := make(map[string]*Fake, len(fakes))
	for _, f := range fakes {
		byName[f.ChannelName] = f
	}
	return func(name string, _ config.ChannelSettings, _ logger.Logger) (channel.Channel, error) {
		if f, ok := byName[name]; ok {
			return f, nil
		}
		return New(name), nil
	}
}

// Registry returns a registry that builds every listed type with Creator(fakes...).
func Registry(types []string, fakes ...*Fake) *channel.Registry {
	r := channel.NewRegistry()
	c := Creator(fakes...)
	for _, t := range types {
		r.Register(t, c)
	}
	return r
}
