package clients

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/routesync"
)

type published struct {
	subject string
	data    []byte
}

// fakeConn records publishes and returns preconfigured errors.
type fakeConn struct {
	publishErr error
	flushErr   error
	published  []published
	closed     bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{subject: subj, data: data})
	return nil
}

func (f *fakeConn) FlushWithContext(_ context.Context) error { return f.flushErr }

func (f *fakeConn) Close() { f.closed = true }

func makeNotifier(conn natsConn, dialErr error, name string) *Notifier {
	n := NewNotifier(config.NATSConfig{URL: "nats://localhost:4222"}, NewCircuitBreaker(name, config.BreakerConfig{}))
	n.dial = func(_ string) (natsConn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	}
	return n
}

func TestNewNotifier_DefaultSubject(t *testing.T) {
	t.Parallel()

	n := NewNotifier(config.NATSConfig{URL: "nats://arc-flash:4222"}, NewCircuitBreaker("nats-new", config.BreakerConfig{}))
	assert.Equal(t, "nats://arc-flash:4222", n.url)
	assert.Equal(t, "beacon.routes.synced", n.subject)
	assert.NotNil(t, n.dial)

	custom := NewNotifier(config.NATSConfig{Subject: "ops.routes"}, NewCircuitBreaker("nats-new-custom", config.BreakerConfig{}))
	assert.Equal(t, "ops.routes", custom.subject)
}

func TestNotifierPublish(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	n := makeNotifier(conn, nil, "nats-publish")

	ev := routesync.Event{
		Service: "arc-beacon",
		Digest:  "abc",
		Routes:  []routesync.Route{{Method: "GET", Path: "/health", Handler: "health"}},
		Removed: 1,
	}
	require.NoError(t, n.Publish(context.Background(), ev))

	require.Len(t, conn.published, 1)
	assert.Equal(t, "beacon.routes.synced", conn.published[0].subject)
	assert.True(t, conn.closed)

	var got routesync.Event
	require.NoError(t, json.Unmarshal(conn.published[0].data, &got))
	assert.Equal(t, ev, got)
}

func TestNotifierPublish_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		conn       *fakeConn
		dialErr    error
		wantErrSub string
	}{
		{name: "dial fails", dialErr: errors.New("no servers available"), wantErrSub: "connecting to NATS"},
		{name: "publish fails", conn: &fakeConn{publishErr: errors.New("connection closed")}, wantErrSub: "publishing"},
		{name: "flush fails", conn: &fakeConn{flushErr: context.DeadlineExceeded}, wantErrSub: "flushing"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := makeNotifier(tc.conn, tc.dialErr, "nats-err-"+tc.name)
			err := n.Publish(context.Background(), routesync.Event{Service: "arc-beacon"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErrSub)
		})
	}
}

func TestNotifierProbe(t *testing.T) {
	t.Parallel()

	ok := makeNotifier(&fakeConn{}, nil, "nats-probe-ok").Probe(context.Background())
	assert.True(t, ok.OK)
	assert.Equal(t, "arc-flash", ok.Name)

	bad := makeNotifier(nil, errors.New("no servers available"), "nats-probe-bad").Probe(context.Background())
	assert.False(t, bad.OK)
	assert.Contains(t, bad.Error, "no servers available")
}
