package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireFrame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// newFakeGateway serves script on every websocket connection and returns the
// ws:// URL.
func newFakeGateway(t *testing.T, script func(c *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") != "10" || r.URL.Query().Get("encoding") != "json" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		script(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendHello(c *websocket.Conn, intervalMs int) error {
	return c.WriteJSON(map[string]interface{}{
		"op": 10,
		"d":  map[string]interface{}{"heartbeat_interval": intervalMs},
	})
}

func sendDispatch(c *websocket.Conn, eventType string, seq int64, d interface{}) error {
	return c.WriteJSON(map[string]interface{}{"op": 0, "t": eventType, "s": seq, "d": d})
}

// readOp reads frames until one with op arrives.
func readOp(c *websocket.Conn, op int) (wireFrame, error) {
	for {
		var f wireFrame
		if err := c.ReadJSON(&f); err != nil {
			return f, err
		}
		if f.Op == op {
			return f, nil
		}
	}
}

// drain reads until the client goes away.
func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

type recorder struct {
	events chan string
}

func newRecorder() *recorder {
	return &recorder{events: make(chan string, 32)}
}

func (r *recorder) Dispatch(_ context.Context, eventType string, _ []byte) {
	r.events <- eventType
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no dispatch received")
		return ""
	}
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) get() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func runSession(ctx context.Context, s *Session, d Dispatcher) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, d) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not return")
		return nil
	}
}

func TestSessionColdIdentifyReachesReady(t *testing.T) {
	identify := make(chan identifyPayload, 1)
	url := newFakeGateway(t, func(c *websocket.Conn) {
		if sendHello(c, 45000) != nil {
			return
		}
		f, err := readOp(c, int(OpIdentify))
		if err != nil {
			return
		}
		var p identifyPayload
		_ = json.Unmarshal(f.D, &p)
		identify <- p

		_ = sendDispatch(c, EventReady, 1, map[string]interface{}{
			"session_id":         "sess-1",
			"resume_gateway_url": "wss://resume.example",
			"user":               map[string]interface{}{"id": "42", "username": "guardian"},
		})
		_ = sendDispatch(c, EventGuildCreate, 2, map[string]interface{}{"id": "g1"})
		drain(c)
	})

	log := &stateLog{}
	sess := NewSession(SessionConfig{
		URL:       url,
		Token:     "tkn",
		Intents:   513,
		IngestCPU: -1,
		OnState:   log.record,
	})
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	done := runSession(ctx, sess, rec)

	assert.Equal(t, EventReady, rec.next(t))
	assert.Equal(t, EventGuildCreate, rec.next(t))

	p := <-identify
	assert.Equal(t, "tkn", p.Token)
	assert.Equal(t, 513, p.Intents)

	cancel()
	assert.ErrorIs(t, waitErr(t, done), context.Canceled)

	assert.Equal(t, []State{
		StateConnecting, StateAwaitingHello, StateIdentified, StateReady, StateClosed,
	}, log.get())

	rs := sess.ResumeState()
	require.NotNil(t, rs)
	assert.Equal(t, "sess-1", rs.SessionID)
	assert.Equal(t, "wss://resume.example", rs.URL)
	assert.Equal(t, int64(2), rs.Seq)
}

func TestSessionResumesWithHeldState(t *testing.T) {
	resume := make(chan resumePayload, 1)
	url := newFakeGateway(t, func(c *websocket.Conn) {
		if sendHello(c, 45000) != nil {
			return
		}
		var first wireFrame
		if err := c.ReadJSON(&first); err != nil {
			return
		}
		if first.Op != int(OpResume) {
			close(resume)
			return
		}
		var p resumePayload
		_ = json.Unmarshal(first.D, &p)
		resume <- p
		_ = sendDispatch(c, EventResumed, 8, map[string]interface{}{})
		drain(c)
	})

	sess := NewSession(SessionConfig{
		URL:       url,
		Token:     "tkn",
		IngestCPU: -1,
		Resume:    &ResumeState{SessionID: "sess-1", URL: url, Seq: 7},
	})
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	done := runSession(ctx, sess, rec)

	assert.Equal(t, EventResumed, rec.next(t))
	p, ok := <-resume
	require.True(t, ok, "expected resume, got a different opcode")
	assert.Equal(t, "sess-1", p.SessionID)
	assert.Equal(t, int64(7), p.Seq)
	assert.Equal(t, StateReady, sess.State())

	cancel()
	waitErr(t, done)
	assert.Equal(t, int64(8), sess.ResumeState().Seq)
}

func TestSessionRejectsMalformedHello(t *testing.T) {
	tests := []struct {
		name  string
		hello interface{}
	}{
		{"zero interval", map[string]interface{}{"op": 10, "d": map[string]interface{}{"heartbeat_interval": 0}}},
		{"wrong opcode", map[string]interface{}{"op": 0, "t": "READY", "d": map[string]interface{}{}}},
		{"missing payload", map[string]interface{}{"op": 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := newFakeGateway(t, func(c *websocket.Conn) {
				_ = c.WriteJSON(tt.hello)
				drain(c)
			})
			sess := NewSession(SessionConfig{URL: url, IngestCPU: -1})
			err := sess.Run(context.Background(), newRecorder())
			assert.ErrorIs(t, err, ErrMalformedHello)
			assert.Equal(t, StateClosed, sess.State())
		})
	}
}

func TestSessionHelloDeadline(t *testing.T) {
	url := newFakeGateway(t, func(c *websocket.Conn) {
		drain(c)
	})
	sess := NewSession(SessionConfig{URL: url, IngestCPU: -1, HandshakeTimeout: 50 * time.Millisecond})

	start := time.Now()
	err := sess.Run(context.Background(), newRecorder())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSessionDetectsZombieConnection(t *testing.T) {
	beats := make(chan struct{}, 8)
	url := newFakeGateway(t, func(c *websocket.Conn) {
		if sendHello(c, 20) != nil {
			return
		}
		for {
			var f wireFrame
			if err := c.ReadJSON(&f); err != nil {
				return
			}
			if f.Op == int(OpHeartbeat) {
				beats <- struct{}{}
			}
		}
	})

	sess := NewSession(SessionConfig{URL: url, IngestCPU: -1})
	err := waitErr(t, runSession(context.Background(), sess, newRecorder()))

	assert.ErrorIs(t, err, ErrZombieConnection)
	select {
	case <-beats:
	case <-time.After(time.Second):
		t.Fatal("first heartbeat never arrived")
	}
	assert.Empty(t, beats, "no second heartbeat after a missed ack")
}

func TestHeartbeatCarriesLastSequence(t *testing.T) {
	found := make(chan struct{})
	url := newFakeGateway(t, func(c *websocket.Conn) {
		if sendHello(c, 20) != nil {
			return
		}
		if _, err := readOp(c, int(OpIdentify)); err != nil {
			return
		}
		_ = sendDispatch(c, EventGuildCreate, 5, map[string]interface{}{"id": "g1"})
		for {
			f, err := readOp(c, int(OpHeartbeat))
			if err != nil {
				return
			}
			_ = c.WriteJSON(map[string]interface{}{"op": 11})
			if string(f.D) == "5" {
				close(found)
				drain(c)
				return
			}
		}
	})

	sess := NewSession(SessionConfig{URL: url, IngestCPU: -1})
	ctx, cancel := context.WithCancel(context.Background())
	done := runSession(ctx, sess, newRecorder())

	select {
	case <-found:
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat carried sequence 5")
	}
	cancel()
	assert.ErrorIs(t, waitErr(t, done), context.Canceled)
}

func TestHeartbeatBeforeFirstDispatchIsNull(t *testing.T) {
	got := make(chan string, 1)
	url := newFakeGateway(t, func(c *websocket.Conn) {
		if sendHello(c, 45000) != nil {
			return
		}
		if _, err := readOp(c, int(OpIdentify)); err != nil {
			return
		}
		// A server heartbeat request must be answered immediately.
		_ = c.WriteJSON(map[string]interface{}{"op": 1, "d": nil})
		f, err := readOp(c, int(OpHeartbeat))
		if err != nil {
			return
		}
		got <- string(f.D)
		drain(c)
	})

	sess := NewSession(SessionConfig{URL: url, IngestCPU: -1})
	ctx, cancel := context.WithCancel(context.Background())
	done := runSession(ctx, sess, newRecorder())

	select {
	case d := <-got:
		assert.Equal(t, "null", d)
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat sent")
	}
	cancel()
	waitErr(t, done)
}

func TestRequestedHeartbeatLeavesScheduledAckAlone(t *testing.T) {
	answered := make(chan struct{})
	scheduled := make(chan struct{})
	url := newFakeGateway(t, func(c *websocket.Conn) {
		if sendHello(c, 1000) != nil {
			return
		}
		if _, err := readOp(c, int(OpIdentify)); err != nil {
			return
		}
		// The answer to a requested beat is never acknowledged.
		_ = c.WriteJSON(map[string]interface{}{"op": 1, "d": nil})
		if _, err := readOp(c, int(OpHeartbeat)); err != nil {
			return
		}
		close(answered)
		if _, err := readOp(c, int(OpHeartbeat)); err != nil {
			return
		}
		_ = c.WriteJSON(map[string]interface{}{"op": 11})
		close(scheduled)
		drain(c)
	})

	mock := clock.NewMock()
	sess := NewSession(SessionConfig{URL: url, IngestCPU: -1, Clock: mock})
	ctx, cancel := context.WithCancel(context.Background())
	done := runSession(ctx, sess, newRecorder())

	select {
	case <-answered:
	case <-time.After(5 * time.Second):
		t.Fatal("requested heartbeat not answered")
	}
	mock.Add(time.Second)

	select {
	case <-scheduled:
	case err := <-done:
		t.Fatalf("session ended early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled heartbeat not sent")
	}
	cancel()
	assert.ErrorIs(t, waitErr(t, done), context.Canceled)
}

func TestStrayHelloIsIgnored(t *testing.T) {
	url := newFakeGateway(t, func(c *websocket.Conn) {
		if sendHello(c, 45000) != nil {
			return
		}
		if _, err := readOp(c, int(OpIdentify)); err != nil {
			return
		}
		_ = sendHello(c, 45000)
		_ = sendDispatch(c, EventReady, 1, map[string]interface{}{"session_id": "sess-1"})
		drain(c)
	})

	rec := newRecorder()
	sess := NewSession(SessionConfig{URL: url, IngestCPU: -1})
	ctx, cancel := context.WithCancel(context.Background())
	done := runSession(ctx, sess, rec)

	assert.Equal(t, EventReady, rec.next(t))
	assert.Equal(t, StateReady, sess.State())
	cancel()
	assert.ErrorIs(t, waitErr(t, done), context.Canceled)
}

func TestControlOpsEndSession(t *testing.T) {
	tests := []struct {
		name       string
		frame      map[string]interface{}
		wantErr    error
		keepResume bool
	}{
		{"reconnect", map[string]interface{}{"op": 7, "d": nil}, ErrReconnectRequested, true},
		{"invalid resumable", map[string]interface{}{"op": 9, "d": true}, ErrInvalidSession, true},
		{"invalid not resumable", map[string]interface{}{"op": 9, "d": false}, ErrInvalidSession, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := newFakeGateway(t, func(c *websocket.Conn) {
				if sendHello(c, 45000) != nil {
					return
				}
				if _, err := readOp(c, int(OpIdentify)); err != nil {
					return
				}
				_ = sendDispatch(c, EventReady, 1, map[string]interface{}{"session_id": "sess-1"})
				_ = c.WriteJSON(tt.frame)
				drain(c)
			})

			sess := NewSession(SessionConfig{URL: url, IngestCPU: -1})
			err := waitErr(t, runSession(context.Background(), sess, newRecorder()))

			assert.ErrorIs(t, err, tt.wantErr)
			if tt.keepResume {
				require.NotNil(t, sess.ResumeState())
				assert.Equal(t, "sess-1", sess.ResumeState().SessionID)
			} else {
				assert.Nil(t, sess.ResumeState())
			}
		})
	}
}

func TestGatewayURLAppendsVersion(t *testing.T) {
	assert.Equal(t, "wss://gateway.discord.gg?encoding=json&v=10", GatewayURL("wss://gateway.discord.gg"))
	assert.Equal(t, "wss://resume.example/?encoding=json&v=10", GatewayURL("wss://resume.example/?v=9"))
}
