package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when NATSConfig.Subject is empty
const DefaultSubject = "fluxpool.access"

// NATSConfig configures the NATS access-event sink
type NATSConfig struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222".
	URL string
	// Subject events are published on. Default: DefaultSubject.
	Subject string
	// Name is an optional NATS connection name.
	Name string
	// FlushTimeout bounds Close's final flush. Default: 2s.
	FlushTimeout time.Duration
}

// NATSSink publishes access events as JSON on a NATS subject.
// The request ID travels in the X-Request-ID header as well as the body.
type NATSSink struct {
	nc           *nats.Conn
	subject      string
	flushTimeout time.Duration
}

// NewNATSSink connects to cfg.URL
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = 2 * time.Second
	}

	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	return &NATSSink{nc: nc, subject: subject, flushTimeout: flush}, nil
}

// Subject returns the subject events are published on
func (s *NATSSink) Subject() string {
	return s.subject
}

// Publish sends ev. It only buffers in the client; delivery is asynchronous.
func (s *NATSSink) Publish(_ context.Context, ev AccessEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode access event: %w", err)
	}

	msg := &nats.Msg{
		Subject: s.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	if ev.RequestID != "" {
		msg.Header.Set("X-Request-ID", ev.RequestID)
	}
	return s.nc.PublishMsg(msg)
}

// Close flushes pending events and closes the connection
func (s *NATSSink) Close() error {
	if s.nc.IsClosed() {
		return nil
	}
	err := s.nc.FlushTimeout(s.flushTimeout)
	s.nc.Close()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
