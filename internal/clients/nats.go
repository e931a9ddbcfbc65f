package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/routesync"
)

const (
	notifierProbeName    = "arc-flash"
	defaultRoutesSubject = "beacon.routes.synced"
)

// natsConn is the subset of *nats.Conn used by Notifier.
type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Notifier announces completed route syncs on a NATS subject.
type Notifier struct {
	url     string
	subject string
	cb      *gobreaker.CircuitBreaker
	dial    func(url string) (natsConn, error)
}

// NewNotifier constructs a Notifier. Connections are opened per call.
func NewNotifier(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker) *Notifier {
	subject := cfg.Subject
	if subject == "" {
		subject = defaultRoutesSubject
	}
	return &Notifier{
		url:     cfg.URL,
		subject: subject,
		cb:      cb,
		dial:    realDial,
	}
}

// Publish encodes ev as JSON and publishes it, waiting for the server to
// acknowledge the flush.
func (n *Notifier) Publish(ctx context.Context, ev routesync.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding route event: %w", err)
	}

	_, err = n.cb.Execute(func() (any, error) {
		nc, err := n.dial(n.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nc.Close()

		if err := nc.Publish(n.subject, payload); err != nil {
			return nil, fmt.Errorf("publishing %s: %w", n.subject, err)
		}
		if err := nc.FlushWithContext(ctx); err != nil {
			return nil, fmt.Errorf("flushing %s: %w", n.subject, err)
		}
		return nil, nil
	})
	return breakerErr(err)
}

// Probe verifies NATS connectivity with a flush round trip.
func (n *Notifier) Probe(ctx context.Context) routesync.ProbeResult {
	start := time.Now()

	_, err := n.cb.Execute(func() (any, error) {
		nc, err := n.dial(n.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nc.Close()

		if err := nc.FlushWithContext(ctx); err != nil {
			return nil, fmt.Errorf("flush: %w", err)
		}
		return nil, nil
	})

	return probeResult(notifierProbeName, start, err)
}

func realDial(url string) (natsConn, error) {
	nc, err := nats.Connect(url, nats.Name("arc-beacon"))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}
