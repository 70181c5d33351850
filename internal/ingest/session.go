package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
	"go-guardian/internal/sys"
)

var (
	ErrMalformedHello     = errors.New("first frame was not a valid hello")
	ErrZombieConnection   = errors.New("heartbeat not acknowledged")
	ErrReconnectRequested = errors.New("gateway requested reconnect")
	ErrInvalidSession     = errors.New("gateway invalidated session")
)

type State int32

const (
	StateConnecting State = iota
	StateAwaitingHello
	StateIdentified
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentified:
		return "identified"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ResumeState is what a later connection needs to resume this session.
type ResumeState struct {
	SessionID string
	URL       string
	Seq       int64
}

// Dispatcher receives every dispatch frame in arrival order.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, data []byte)
}

type SessionConfig struct {
	URL              string
	Token            string
	Intents          int
	HandshakeTimeout time.Duration
	// IngestCPU pins the reader thread when >= 0.
	IngestCPU int
	// Resume, when set, makes the session send Resume instead of Identify.
	Resume  *ResumeState
	OnState func(State)
	Clock   clock.Clock
	Dialer  *websocket.Dialer
}

const (
	frameBuffer  = 64
	writeTimeout = 10 * time.Second
)

// Session is one connection attempt. It is not reusable.
type Session struct {
	cfg    SessionConfig
	dialer *websocket.Dialer
	clock  clock.Clock

	state     atomic.Int32
	seq       *SequenceTracker
	heartbeat *HeartbeatMonitor

	conn      *websocket.Conn
	sessionID string
	resumeURL string
	resume    *ResumeState
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			ReadBufferSize:   65536,
			WriteBufferSize:  32768,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}

	s := &Session{
		cfg:       cfg,
		dialer:    dialer,
		clock:     cfg.Clock,
		seq:       NewSequenceTracker(),
		heartbeat: NewHeartbeatMonitor(),
	}
	if cfg.Resume != nil {
		r := *cfg.Resume
		s.resume = &r
		s.sessionID = r.SessionID
		s.resumeURL = r.URL
		s.seq.Update(r.Seq)
	}
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	metrics.GatewayState.Set(float64(st))
	if s.cfg.OnState != nil {
		s.cfg.OnState(st)
	}
}

// ResumeState returns what is needed to resume after Run returns, or nil when
// the session never became resumable or the gateway invalidated it.
func (s *Session) ResumeState() *ResumeState {
	if s.sessionID == "" {
		return nil
	}
	seq, _ := s.seq.Get()
	u := s.resumeURL
	if u == "" {
		u = s.cfg.URL
	}
	return &ResumeState{SessionID: s.sessionID, URL: u, Seq: seq}
}

// Run connects and serves the session until it fails or ctx is cancelled.
// Dispatches are handed to d with ctx, so handlers outlive the connection.
func (s *Session) Run(ctx context.Context, d Dispatcher) error {
	defer s.setState(StateClosed)

	s.setState(StateConnecting)
	target := s.cfg.URL
	if s.resume != nil && s.resume.URL != "" {
		target = s.resume.URL
	}
	conn, _, err := s.dialer.DialContext(ctx, GatewayURL(target), nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	s.conn = conn
	defer conn.Close()

	s.setState(StateAwaitingHello)
	interval, err := s.readHello()
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	frames := make(chan *Frame, frameBuffer)
	readErr := make(chan error, 1)
	go s.readLoop(connCtx, frames, readErr)

	if err := s.sendHandshake(); err != nil {
		return err
	}
	s.setState(StateIdentified)

	return s.loop(ctx, d, interval, frames, readErr)
}

func (s *Session) readHello() (time.Duration, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	_ = s.conn.SetReadDeadline(time.Time{})

	frame, err := DecodeFrame(data)
	if err != nil || frame.Op != OpHello {
		return 0, ErrMalformedHello
	}
	var hello helloPayload
	if err := json.Unmarshal(frame.D, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		return 0, ErrMalformedHello
	}
	return time.Duration(hello.HeartbeatInterval) * time.Millisecond, nil
}

func (s *Session) sendHandshake() error {
	if s.resume != nil {
		logging.Info("[GATEWAY] Resuming session %s at seq %d", s.resume.SessionID, s.resume.Seq)
		return s.write(outbound{Op: OpResume, D: resumePayload{
			Token:     s.cfg.Token,
			SessionID: s.resume.SessionID,
			Seq:       s.resume.Seq,
		}})
	}
	return s.write(outbound{Op: OpIdentify, D: identifyPayload{
		Token:   s.cfg.Token,
		Intents: s.cfg.Intents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "go-guardian",
			Device:  "go-guardian",
		},
	}})
}

// readLoop is the only reader of the socket.
func (s *Session) readLoop(ctx context.Context, frames chan<- *Frame, errs chan<- error) {
	if s.cfg.IngestCPU >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := sys.PinToCore(s.cfg.IngestCPU); err != nil {
			logging.Warn("[GATEWAY] Failed to pin reader to core %d: %v", s.cfg.IngestCPU, err)
		}
	}

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			errs <- fmt.Errorf("read frame: %w", err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			errs <- err
			return
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) loop(ctx context.Context, d Dispatcher, interval time.Duration, frames <-chan *Frame, readErr <-chan error) error {
	first := time.Duration(rand.Int63n(int64(interval)))
	timer := s.clock.Timer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()

		case err := <-readErr:
			return err

		case <-timer.C:
			if !s.heartbeat.Acked() {
				logging.Warn("[GATEWAY] Heartbeat %d never acknowledged", s.heartbeat.Sent())
				return ErrZombieConnection
			}
			if err := s.sendHeartbeat(); err != nil {
				return err
			}
			timer.Reset(interval)

		case frame := <-frames:
			if err := s.handle(ctx, d, frame); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, d Dispatcher, f *Frame) error {
	if f.S != nil {
		s.seq.Update(*f.S)
	}

	switch f.Op {
	case OpDispatch:
		switch f.T {
		case EventReady:
			var r Ready
			if err := json.Unmarshal(f.D, &r); err == nil && r.SessionID != "" {
				s.sessionID = r.SessionID
				s.resumeURL = r.ResumeGatewayURL
			}
			logging.Info("[GATEWAY] Ready as %s (session %s)", r.User.Username, r.SessionID)
			s.setState(StateReady)
		case EventResumed:
			logging.Info("[GATEWAY] Session resumed")
			s.setState(StateReady)
		}
		metrics.EventsReceived.WithLabelValues(f.T).Inc()
		if d != nil {
			d.Dispatch(ctx, f.T, f.D)
		}

	case OpHeartbeat:
		// Requested beats leave the scheduled ack state alone.
		return s.writeHeartbeat()

	case OpHeartbeatACK:
		rtt := s.heartbeat.RecordACK(s.clock.Now())
		metrics.HeartbeatLatency.Observe(rtt.Seconds())

	case OpReconnect:
		return ErrReconnectRequested

	case OpInvalidSession:
		var resumable bool
		_ = json.Unmarshal(f.D, &resumable)
		if !resumable {
			s.sessionID = ""
			s.resumeURL = ""
			s.seq.Reset()
		}
		return fmt.Errorf("%w (resumable=%t)", ErrInvalidSession, resumable)

	default:
		if f.Op.IsControl() {
			logging.Debug("[GATEWAY] Ignoring control %s", f.Op)
		} else {
			logging.Debug("[GATEWAY] Ignoring unknown %s", f.Op)
		}
	}
	return nil
}

// sendHeartbeat is the scheduled beat; the next tick expects its ACK.
func (s *Session) sendHeartbeat() error {
	if err := s.writeHeartbeat(); err != nil {
		return err
	}
	s.heartbeat.RecordSent(s.clock.Now())
	return nil
}

func (s *Session) writeHeartbeat() error {
	seq, ok := s.seq.Get()
	return s.write(heartbeatFrame(seq, ok))
}

func (s *Session) write(frame outbound) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frame.Op, err)
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", frame.Op, err)
	}
	return nil
}

// GatewayURL appends the protocol version and encoding to base.
func GatewayURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("v", "10")
	q.Set("encoding", "json")
	u.RawQuery = q.Encode()
	return u.String()
}
