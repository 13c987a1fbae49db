// Package events publishes one access event per served request.
package events

import (
	"context"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core"
)

// AccessEvent describes one request/response exchange
type AccessEvent struct {
	RequestID  string        `json:"request_id"`
	Time       time.Time     `json:"time"`
	RemoteAddr string        `json:"remote_addr"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Proto      string        `json:"proto"`
	Status     int           `json:"status"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration_ns"`
}

// Sink receives access events. Publish must not block for long: it runs on
// a pool worker after the response has been written.
type Sink interface {
	Publish(ctx context.Context, ev AccessEvent) error
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) Publish(context.Context, AccessEvent) error { return nil }

// LogSink writes events as access-log lines at info level
type LogSink struct {
	Logger core.Logger
}

func (s LogSink) Publish(_ context.Context, ev AccessEvent) error {
	s.Logger.Infof("%s %s %q %d %d %s [%s]",
		ev.RemoteAddr, ev.Method, ev.Path, ev.Status, ev.Bytes, ev.Duration, ev.RequestID)
	return nil
}

// Multi fans an event out to several sinks and returns the first error
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Publish(ctx context.Context, ev AccessEvent) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
