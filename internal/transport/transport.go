// Package transport is the WebSocket link to the analysis backend.
//
// A [Client] joins one session on dial, streams per-tick facial analysis and
// periodic webcam frames upstream, and decodes inbound messages into typed
// [Event] values on a buffered channel. The link is best-effort: once the read
// side fails the client reports [Disconnected] and stays down. Callers that
// want a fresh link dial a new client.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/MrWong99/interviewcoach/internal/observe"
	"github.com/MrWong99/interviewcoach/internal/scoring"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

// Outbound and inbound message types.
const (
	TypeJoinSession    = "join_session"
	TypeFacialAnalysis = "facial_analysis"
	TypeWebcamFrame    = "webcam_frame"
	TypeAnalysisResult = "analysis_result"
	TypeSessionJoined  = "session_joined"
	TypeError          = "error"
)

var (
	// ErrClosed is returned by send methods after Close or a read failure.
	ErrClosed = errors.New("transport: connection closed")

	// ErrThrottled is returned when the outbound rate limit drops a message.
	ErrThrottled = errors.New("transport: outbound message throttled")
)

// Event is an inbound message or a connection state change.
type Event interface {
	eventType() string
}

// AnalysisResult carries server-computed scores for the current session.
type AnalysisResult struct {
	Scores          scoring.RemoteScores
	DominantEmotion string
	Recommendations []string
	Raw             json.RawMessage
}

// SessionJoined acknowledges join_session.
type SessionJoined struct {
	SessionID string
}

// ServerError is an error message pushed by the server.
type ServerError struct {
	Message string
}

// Disconnected is the last event a client emits before its channel closes.
type Disconnected struct {
	Err error
}

func (AnalysisResult) eventType() string { return TypeAnalysisResult }
func (SessionJoined) eventType() string  { return TypeSessionJoined }
func (ServerError) eventType() string    { return TypeError }
func (Disconnected) eventType() string   { return "disconnected" }

// Option configures a [Client].
type Option func(*Client)

// WithRate sets the outbound message rate. Default: 10 msg/s, burst 5.
func WithRate(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithBufferSize sets the inbound event buffer. Default: 32.
func WithBufferSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// WithMetrics sets the metrics instance. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithWriteTimeout bounds each outbound write. Default: 2s.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

// WithJPEGQuality sets the webcam frame encoding quality. Default: 80.
func WithJPEGQuality(q int) Option {
	return func(c *Client) { c.jpegQuality = q }
}

// Client is a live WebSocket session link. Send methods are safe for
// concurrent use.
type Client struct {
	conn      *websocket.Conn
	sessionID string

	limiter      *rate.Limiter
	metrics      *observe.Metrics
	bufSize      int
	writeTimeout time.Duration
	jpegQuality  int

	events    chan Event
	connected atomic.Bool
	done      chan struct{}
	cancel    context.CancelFunc
	once      sync.Once
	wg        sync.WaitGroup
}

// Dial connects to {baseURL}/ws and joins sessionID as userID.
func Dial(ctx context.Context, baseURL, sessionID, userID string, opts ...Option) (*Client, error) {
	c := &Client{
		sessionID:    sessionID,
		limiter:      rate.NewLimiter(10, 5),
		bufSize:      32,
		writeTimeout: 2 * time.Second,
		jpegQuality:  80,
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.events = make(chan Event, c.bufSize)

	url := strings.TrimSuffix(baseURL, "/") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	c.connected.Store(true)

	join := map[string]any{"type": TypeJoinSession, "sessionId": sessionID, "userId": userID}
	if err := c.write(ctx, TypeJoinSession, join); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("transport: join session: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.readLoop(readCtx)

	slog.Info("transport connected", "url", url, "session_id", sessionID)
	return c, nil
}

// Events returns the inbound event channel. It is closed after the client
// stops reading.
func (c *Client) Events() <-chan Event { return c.events }

// Connected reports whether the read side is still alive.
func (c *Client) Connected() bool { return c.connected.Load() }

// Check implements a health probe.
func (c *Client) Check(context.Context) error {
	if !c.Connected() {
		return ErrClosed
	}
	return nil
}

type boxPayload struct {
	Box types.BoundingBox `json:"box"`
}

type faceData struct {
	Detection   boxPayload         `json:"detection"`
	Landmarks   *types.Landmarks   `json:"landmarks"`
	Expressions map[string]float64 `json:"expressions"`
}

type facialAnalysis struct {
	Type      string   `json:"type"`
	SessionID string   `json:"sessionId"`
	FaceData  faceData `json:"faceData"`
	Timestamp int64    `json:"timestamp"`
}

// SendFacialAnalysis streams one tick's detection upstream. Samples without a
// face are not sent and return (false, nil).
func (c *Client) SendFacialAnalysis(ctx context.Context, s types.DetectionSample) (bool, error) {
	if !s.FaceDetected || s.Box == nil {
		return false, nil
	}
	msg := facialAnalysis{
		Type:      TypeFacialAnalysis,
		SessionID: c.sessionID,
		FaceData: faceData{
			Detection:   boxPayload{Box: *s.Box},
			Landmarks:   s.Landmarks,
			Expressions: s.Expressions,
		},
		Timestamp: s.Timestamp.UnixMilli(),
	}
	if err := c.send(ctx, TypeFacialAnalysis, msg); err != nil {
		return false, err
	}
	return true, nil
}

// SendFrame JPEG-encodes img as a data URL and sends it as webcam_frame.
func (c *Client) SendFrame(ctx context.Context, img image.Image, at time.Time) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	msg := map[string]any{
		"type":      TypeWebcamFrame,
		"frameData": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		"sessionId": c.sessionID,
		"timestamp": at.UTC().Format(time.RFC3339Nano),
	}
	return c.send(ctx, TypeWebcamFrame, msg)
}

// Close ends the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.connected.Store(false)
		// The peer may already be gone; the close handshake error is not actionable.
		_ = c.conn.Close(websocket.StatusNormalClosure, "session ended")
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

func (c *Client) send(ctx context.Context, msgType string, v any) error {
	if !c.Connected() {
		return ErrClosed
	}
	if !c.limiter.Allow() {
		c.metrics.RecordTransportMessage(ctx, "throttled", msgType)
		return ErrThrottled
	}
	return c.write(ctx, msgType, v)
}

func (c *Client) write(ctx context.Context, msgType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal %s: %w", msgType, err)
	}
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write %s: %w", msgType, err)
	}
	c.metrics.RecordTransportMessage(ctx, "out", msgType)
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.events)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.connected.Store(false)
			select {
			case <-c.done:
				return
			default:
			}
			slog.Warn("transport disconnected, continuing locally", "session_id", c.sessionID, "err", err)
			c.emit(Disconnected{Err: err})
			return
		}

		ev, err := decode(data)
		if err != nil {
			slog.Warn("transport: dropping inbound message", "err", err)
			continue
		}
		if ev == nil {
			continue
		}
		c.metrics.RecordTransportMessage(ctx, "in", ev.eventType())
		c.emit(ev)
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

type inbound struct {
	Type          string          `json:"type"`
	SessionID     string          `json:"sessionId"`
	Message       string          `json:"message"`
	Analysis      json.RawMessage `json:"analysis"`
	CurrentScores *struct {
		EyeContact float64 `json:"eyeContact"`
		Confidence float64 `json:"confidence"`
		Engagement float64 `json:"engagement"`
	} `json:"currentScores"`
	Recommendations []string `json:"recommendations"`
}

// decode maps a raw frame to an Event. Unknown types yield (nil, nil).
func decode(data []byte) (Event, error) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch msg.Type {
	case TypeAnalysisResult:
		ev := AnalysisResult{
			DominantEmotion: "neutral",
			Recommendations: msg.Recommendations,
			Raw:             msg.Analysis,
		}
		if msg.CurrentScores != nil {
			ev.Scores = scoring.RemoteScores{
				EyeContact: msg.CurrentScores.EyeContact,
				Confidence: msg.CurrentScores.Confidence,
				Engagement: msg.CurrentScores.Engagement,
			}
		}
		if len(msg.Analysis) > 0 {
			var a struct {
				Data struct {
					DominantEmotion string `json:"dominantEmotion"`
				} `json:"data"`
			}
			if json.Unmarshal(msg.Analysis, &a) == nil && a.Data.DominantEmotion != "" {
				ev.DominantEmotion = a.Data.DominantEmotion
			}
		}
		return ev, nil
	case TypeSessionJoined:
		return SessionJoined{SessionID: msg.SessionID}, nil
	case TypeError:
		return ServerError{Message: msg.Message}, nil
	default:
		slog.Debug("transport: ignoring unknown message type", "type", msg.Type)
		return nil, nil
	}
}
