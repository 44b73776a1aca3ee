// Package interview runs one mock-interview session: the question flow, the
// capture lifecycle and the real-time feedback loop.
//
// A [Controller] owns a single goroutine. Four tickers (analysis, speech,
// monitor, frame relay), inbound transport events and user commands are
// multiplexed through one select loop, so every handler sees the session
// [State] without locks and runs to completion before the next event is
// taken. Handlers are individually guarded: a panic is logged and the loop
// keeps going.
//
// Capture resources (media stream, speech detector, transport link, tickers)
// are released by a single teardown routine that runs on StopRecording,
// completion, restart and when Run returns for any reason.
package interview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/interviewcoach/internal/aggregate"
	"github.com/MrWong99/interviewcoach/internal/analysis"
	"github.com/MrWong99/interviewcoach/internal/monitor"
	"github.com/MrWong99/interviewcoach/internal/observe"
	"github.com/MrWong99/interviewcoach/internal/resilience"
	"github.com/MrWong99/interviewcoach/internal/scoring"
	"github.com/MrWong99/interviewcoach/internal/speech"
	"github.com/MrWong99/interviewcoach/internal/transport"
	"github.com/MrWong99/interviewcoach/pkg/media"
	"github.com/MrWong99/interviewcoach/pkg/provider/vad"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

var (
	// ErrNoQuestions is reported when every question source failed.
	ErrNoQuestions = errors.New("interview: no questions available")

	// ErrMediaUnavailable wraps camera/microphone acquisition failures. It is
	// never retried automatically.
	ErrMediaUnavailable = errors.New("interview: camera or microphone unavailable")

	// ErrInvalidPhase is returned when a command does not apply to the
	// current phase.
	ErrInvalidPhase = errors.New("interview: command not valid in current phase")

	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("interview: controller stopped")
)

// FrameAnalyzer turns a video frame into a detection sample.
// *analysis.Analyzer satisfies it.
type FrameAnalyzer interface {
	AnalyzeFrame(ctx context.Context, img image.Image) (types.DetectionSample, error)
	Mode() analysis.Mode
}

// Link is the live transport. *transport.Client satisfies it.
type Link interface {
	SendFacialAnalysis(ctx context.Context, s types.DetectionSample) (bool, error)
	SendFrame(ctx context.Context, img image.Image, at time.Time) error
	Events() <-chan transport.Event
	Connected() bool
	Close() error
}

// Dialer opens a transport link for a session.
type Dialer func(ctx context.Context, sessionID string) (Link, error)

// Ticker is the part of *time.Ticker the controller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates the named ticker ("analysis", "speech", "monitor",
// "relay") with period d.
type TickerFactory func(name string, d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func newStdTicker(_ string, d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

// Policy is the live-tunable part of the session settings. Updates apply at
// the start of the next question; intervals apply on the next recording.
type Policy struct {
	AnalysisInterval   time.Duration
	SpeechInterval     time.Duration
	MonitorInterval    time.Duration
	FrameRelayInterval time.Duration

	Monitor        monitor.Policy
	EmotionHistory int
}

// DefaultPolicy returns 1 s analysis, 100 ms speech, 1 s monitor and 2 s relay
// ticks with the stock monitor thresholds and a 20-entry emotion window.
func DefaultPolicy() Policy {
	return Policy{
		AnalysisInterval:   time.Second,
		SpeechInterval:     100 * time.Millisecond,
		MonitorInterval:    time.Second,
		FrameRelayInterval: 2 * time.Second,
		Monitor:            monitor.DefaultPolicy(),
		EmotionHistory:     20,
	}
}

// Settings configures a [Controller].
type Settings struct {
	Type            types.InterviewType
	Constraints     media.Constraints
	VAD             vad.Config
	Weights         scoring.Weights
	Policy          Policy
	AnswerTimeLimit time.Duration
}

// Deps are the collaborators of a [Controller]. Device, Analyzer, Questions
// and Aggregator are required.
type Deps struct {
	Device     media.Device
	VAD        vad.Engine
	Analyzer   FrameAnalyzer
	Questions  *resilience.FallbackGroup[QuestionSource]
	Aggregator *aggregate.Aggregator

	// Dial is optional; without it the session runs on local analysis only.
	Dial Dialer
}

// Option configures a [Controller].
type Option func(*Controller)

// WithClock overrides the wall clock used by commands.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTickers overrides ticker construction.
func WithTickers(f TickerFactory) Option {
	return func(c *Controller) { c.newTicker = f }
}

// WithMetrics sets the metrics instance. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithSessionIDs overrides session id generation.
func WithSessionIDs(fn func(now time.Time) string) Option {
	return func(c *Controller) { c.newSessionID = fn }
}

// View is a read-only snapshot of the session for display.
type View struct {
	SessionID string
	Type      types.InterviewType
	Phase     Phase
	Err       error

	QuestionIndex  int
	TotalQuestions int
	Question       types.Question
	QuestionSource string
	QuestionStart  time.Time

	Live     types.ScoreSnapshot
	Speech   types.SpeechState
	Level    float64
	Presence monitor.State
	Alert    bool

	Emotion  string
	Emotions []types.EmotionSample

	AnalysisMode       string
	TransportConnected bool
	Recommendations    []string

	Answers    []types.QuestionAnswerRecord
	Submission *types.SessionSubmission
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdNext
	cmdSubmit
	cmdRestart
	cmdReload
	cmdPolicy
	cmdView
)

func (k cmdKind) String() string {
	return [...]string{"start", "stop", "next", "submit", "restart", "reload", "policy", "view"}[k]
}

type command struct {
	kind   cmdKind
	policy Policy
	reply  chan cmdResult
}

type cmdResult struct {
	view View
	err  error
}

// capture holds everything acquired by StartRecording.
type capture struct {
	stream  media.Stream
	speech  *speech.Detector
	link    Link
	events  <-chan transport.Event
	tickers []Ticker

	analysisC <-chan time.Time
	speechC   <-chan time.Time
	relayC    <-chan time.Time
}

// Controller runs one interview session. Create it with [New] and drive it
// with [Controller.Run]; every other method is safe to call from any
// goroutine while Run is active.
type Controller struct {
	settings Settings
	deps     Deps

	now          func() time.Time
	newTicker    TickerFactory
	metrics      *observe.Metrics
	newSessionID func(time.Time) string

	cmds    chan command
	updates chan View
	done    chan struct{}

	linkUp    atomic.Bool
	recording atomic.Bool
	currentID atomic.Pointer[string]

	// Loop-owned below.
	state         *State
	sessionID     string
	questions     []types.Question
	source        string
	submission    *types.SessionSubmission
	monitor       *monitor.Monitor
	synth         *scoring.Synthesizer
	cap           *capture
	monitorTicker Ticker
	pending       *Policy
}

// New validates deps and returns a Controller.
func New(s Settings, d Deps, opts ...Option) (*Controller, error) {
	var errs []error
	if d.Device == nil {
		errs = append(errs, errors.New("device is required"))
	}
	if d.Analyzer == nil {
		errs = append(errs, errors.New("analyzer is required"))
	}
	if d.Questions == nil {
		errs = append(errs, errors.New("question sources are required"))
	}
	if d.Aggregator == nil {
		errs = append(errs, errors.New("aggregator is required"))
	}
	if !s.Type.IsValid() {
		errs = append(errs, fmt.Errorf("invalid interview type %q", s.Type))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("interview: %w", err)
	}

	def := DefaultPolicy()
	setDuration(&s.Policy.AnalysisInterval, def.AnalysisInterval)
	setDuration(&s.Policy.SpeechInterval, def.SpeechInterval)
	setDuration(&s.Policy.MonitorInterval, def.MonitorInterval)
	setDuration(&s.Policy.FrameRelayInterval, def.FrameRelayInterval)
	if s.Policy.Monitor == (monitor.Policy{}) {
		s.Policy.Monitor = def.Monitor
	}
	if s.Weights == (scoring.Weights{}) {
		s.Weights = scoring.DefaultWeights()
	}
	if s.Constraints == (media.Constraints{}) {
		s.Constraints = media.DefaultConstraints()
	}

	c := &Controller{
		settings:     s,
		deps:         d,
		now:          time.Now,
		newTicker:    newStdTicker,
		newSessionID: SessionID,
		cmds:         make(chan command),
		updates:      make(chan View, 1),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.state = newState(s.Policy.EmotionHistory)
	c.monitor = monitor.New(s.Policy.Monitor, c.now())
	c.synth = scoring.New(s.Weights)
	return c, nil
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// SessionID formats interview_<unix ms>_<9 chars of a random UUID>.
func SessionID(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("interview_%d_%s", now.UnixMilli(), id[:9])
}

// Updates delivers the latest View after each handled event. Slow readers
// only ever see the most recent view.
func (c *Controller) Updates() <-chan View { return c.updates }

// TransportConnected reports whether a transport link is currently up.
func (c *Controller) TransportConnected() bool { return c.linkUp.Load() }

// SessionID returns the current session id, or "" before Run starts. Unlike
// [Controller.View] it does not go through the loop, so collaborators called
// from inside the loop may use it.
func (c *Controller) SessionID() string {
	if id := c.currentID.Load(); id != nil {
		return *id
	}
	return ""
}

func (c *Controller) setSessionID(id string) {
	c.sessionID = id
	c.currentID.Store(&id)
}

// Recording reports whether capture is running.
func (c *Controller) Recording() bool { return c.recording.Load() }

// StartRecording acquires media and starts the feedback loop.
func (c *Controller) StartRecording(ctx context.Context) error { return c.send(ctx, cmdStart) }

// StopRecording releases capture resources. The current question stays on
// screen.
func (c *Controller) StopRecording(ctx context.Context) error { return c.send(ctx, cmdStop) }

// NextQuestion records the current answer and moves on; after the last
// question the session is finalized and submitted.
func (c *Controller) NextQuestion(ctx context.Context) error { return c.send(ctx, cmdNext) }

// Submit retries a failed submission with the identical payload.
func (c *Controller) Submit(ctx context.Context) error { return c.send(ctx, cmdSubmit) }

// Restart discards the session and starts a new one with a fresh id.
func (c *Controller) Restart(ctx context.Context) error { return c.send(ctx, cmdRestart) }

// ReloadQuestions retries question loading after ErrNoQuestions.
func (c *Controller) ReloadQuestions(ctx context.Context) error { return c.send(ctx, cmdReload) }

// UpdatePolicy stages p; it takes effect at the next question.
func (c *Controller) UpdatePolicy(ctx context.Context, p Policy) error {
	_, err := c.do(ctx, command{kind: cmdPolicy, policy: p})
	return err
}

// View returns the current snapshot.
func (c *Controller) View(ctx context.Context) (View, error) {
	return c.do(ctx, command{kind: cmdView})
}

func (c *Controller) send(ctx context.Context, k cmdKind) error {
	_, err := c.do(ctx, command{kind: k})
	return err
}

func (c *Controller) do(ctx context.Context, cmd command) (View, error) {
	cmd.reply = make(chan cmdResult, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.view, r.err
	case <-c.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Run loads the questions and processes events until ctx is cancelled. All
// capture resources are released before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.teardown()
	defer c.stopMonitor()

	c.setSessionID(c.newSessionID(c.now()))
	slog.Info("interview session created", "session_id", c.sessionID, "type", c.settings.Type)
	c.guard(ctx, "load questions", func() { c.loadQuestions(ctx) })
	c.publish()

	for {
		var (
			analysisC, speechC, relayC, monitorC <-chan time.Time
			events                               <-chan transport.Event
		)
		if c.cap != nil {
			analysisC, speechC, relayC, events = c.cap.analysisC, c.cap.speechC, c.cap.relayC, c.cap.events
		}
		if c.monitorTicker != nil {
			monitorC = c.monitorTicker.C()
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.cmds:
			var err error
			c.guard(ctx, "command "+cmd.kind.String(), func() { err = c.exec(ctx, cmd) })
			cmd.reply <- cmdResult{view: c.view(), err: err}
		case now := <-analysisC:
			c.guard(ctx, "analysis tick", func() { c.onAnalysisTick(ctx, now) })
		case now := <-speechC:
			c.guard(ctx, "speech tick", func() { c.onSpeechTick(ctx, now) })
		case now := <-monitorC:
			c.guard(ctx, "monitor tick", func() { c.onMonitorTick(ctx, now) })
		case now := <-relayC:
			c.guard(ctx, "relay tick", func() { c.onRelayTick(ctx, now) })
		case ev, ok := <-events:
			if !ok {
				c.cap.events = nil
				c.linkUp.Store(false)
				break
			}
			c.guard(ctx, "transport event", func() { c.onTransportEvent(ev) })
		}
		c.publish()
	}
}

// guard runs fn and contains any panic so that one bad tick cannot stop the
// loop.
func (c *Controller) guard(ctx context.Context, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			observe.Logger(ctx).Error("interview: handler panicked",
				"handler", name,
				"session_id", c.sessionID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

func (c *Controller) exec(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return c.startRecording(ctx)
	case cmdStop:
		if c.state.Phase != PhaseRecording {
			return nil
		}
		c.teardown()
		c.state.setPhase(PhaseReady, nil)
		return nil
	case cmdNext:
		if !c.state.Phase.questionActive() {
			return ErrInvalidPhase
		}
		c.advance(ctx, c.now(), "user")
		return c.state.Err
	case cmdSubmit:
		return c.retrySubmit(ctx)
	case cmdRestart:
		c.restart(ctx)
		return c.state.Err
	case cmdReload:
		if c.state.Phase != PhaseNoQuestions {
			return ErrInvalidPhase
		}
		c.loadQuestions(ctx)
		return c.state.Err
	case cmdPolicy:
		p := cmd.policy
		c.pending = &p
		return nil
	case cmdView:
		return nil
	default:
		return fmt.Errorf("interview: unknown command %d", cmd.kind)
	}
}

func (c *Controller) loadQuestions(ctx context.Context) {
	c.state.setPhase(PhaseLoading, nil)
	qs, source, err := fetchQuestions(ctx, c.deps.Questions, c.settings.Type)
	if err != nil {
		observe.Logger(ctx).Error("interview: failed to load questions", "session_id", c.sessionID, "err", err)
		c.questions = nil
		c.state.setPhase(PhaseNoQuestions, err)
		return
	}
	if names := c.deps.Questions.Names(); len(names) > 0 && source != names[0] {
		slog.Warn("interview: using fallback questions", "source", source, "count", len(qs))
	} else {
		slog.Info("interview: questions loaded", "source", source, "count", len(qs))
	}
	c.questions = qs
	c.source = source
	c.beginQuestion(0, c.now())
	c.state.setPhase(PhaseReady, nil)
	c.startMonitor()
}

// beginQuestion resets every per-question component and applies any staged
// policy.
func (c *Controller) beginQuestion(index int, now time.Time) {
	if p := c.pending; p != nil {
		c.settings.Policy = *p
		c.pending = nil
		c.monitor.SetPolicy(p.Monitor)
		c.state.setEmotionLimit(p.EmotionHistory)
		slog.Info("interview: policy updated", "session_id", c.sessionID)
	}
	c.state.beginQuestion(index, now)
	c.monitor.Reset(now)
	c.synth.Reset()
	if c.cap != nil {
		c.cap.speech.ResetTimers(now)
	}
	slog.Debug("interview: question started", "session_id", c.sessionID, "question", index+1, "total", len(c.questions))
}

func (c *Controller) startRecording(ctx context.Context) error {
	switch c.state.Phase {
	case PhaseRecording:
		return nil
	case PhaseReady:
	default:
		return ErrInvalidPhase
	}

	stream, err := c.deps.Device.Acquire(ctx, c.settings.Constraints)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
		observe.Logger(ctx).Error("interview: media acquisition failed", "session_id", c.sessionID, "err", err)
		c.state.Err = err
		return err
	}

	now := c.now()
	cp := &capture{
		stream: stream,
		speech: speech.New(c.deps.VAD, c.settings.VAD, stream, c.state.Speech.LastSpeech),
	}

	if c.deps.Dial != nil {
		link, err := c.deps.Dial(ctx, c.sessionID)
		if err != nil {
			slog.Warn("interview: transport unavailable, continuing with local analysis", "session_id", c.sessionID, "err", err)
		} else {
			cp.link = link
			cp.events = link.Events()
			c.linkUp.Store(true)
		}
	}

	p := c.settings.Policy
	at := c.newTicker("analysis", p.AnalysisInterval)
	st := c.newTicker("speech", p.SpeechInterval)
	rt := c.newTicker("relay", p.FrameRelayInterval)
	cp.tickers = []Ticker{at, st, rt}
	cp.analysisC, cp.speechC, cp.relayC = at.C(), st.C(), rt.C()

	c.cap = cp
	c.deps.Aggregator.MarkStart(now)
	c.recording.Store(true)
	c.metrics.ActiveSessions.Add(ctx, 1)
	c.state.setPhase(PhaseRecording, nil)
	slog.Info("interview: recording started",
		"session_id", c.sessionID,
		"analysis_mode", c.deps.Analyzer.Mode().String(),
		"speech_enabled", cp.speech.Enabled(),
		"transport", cp.link != nil,
	)
	return nil
}

// teardown releases every capture resource. Safe to call when nothing is
// acquired.
func (c *Controller) teardown() {
	cp := c.cap
	if cp == nil {
		return
	}
	c.cap = nil
	for _, t := range cp.tickers {
		t.Stop()
	}
	if err := cp.stream.Stop(); err != nil {
		slog.Warn("interview: stop media", "session_id", c.sessionID, "err", err)
	}
	if err := cp.speech.Close(); err != nil {
		slog.Warn("interview: close speech detector", "session_id", c.sessionID, "err", err)
	}
	if cp.link != nil {
		if err := cp.link.Close(); err != nil {
			slog.Warn("interview: close transport", "session_id", c.sessionID, "err", err)
		}
	}
	c.linkUp.Store(false)
	c.recording.Store(false)
	c.metrics.ActiveSessions.Add(context.Background(), -1)
	c.state.Speech.IsSpeaking = false
	slog.Info("interview: recording stopped", "session_id", c.sessionID)
}

func (c *Controller) startMonitor() {
	if c.monitorTicker == nil {
		c.monitorTicker = c.newTicker("monitor", c.settings.Policy.MonitorInterval)
	}
}

func (c *Controller) stopMonitor() {
	if c.monitorTicker != nil {
		c.monitorTicker.Stop()
		c.monitorTicker = nil
	}
}

func (c *Controller) onAnalysisTick(ctx context.Context, now time.Time) {
	mode := c.deps.Analyzer.Mode().String()
	img, err := c.cap.stream.VideoFrame()
	if err != nil {
		c.metrics.RecordAnalysis(ctx, mode, "skipped", 0)
		slog.Debug("interview: no video frame", "err", err)
		return
	}

	start := time.Now()
	sample, err := c.deps.Analyzer.AnalyzeFrame(ctx, img)
	if err != nil {
		c.metrics.RecordAnalysis(ctx, mode, "error", time.Since(start))
		slog.Warn("interview: frame analysis failed, skipping tick", "session_id", c.sessionID, "err", err)
		return
	}
	c.metrics.RecordAnalysis(ctx, mode, "ok", time.Since(start))

	if !sample.FaceDetected {
		c.state.applyNoFace()
		return
	}
	c.monitor.ObserveFace(now)
	snap := c.synth.Synthesize(sample, c.state.speechAt(now))
	c.state.applySynthesis(sample, snap)

	if c.cap.link != nil && c.cap.link.Connected() {
		if _, err := c.cap.link.SendFacialAnalysis(ctx, sample); err != nil {
			slog.Debug("interview: facial analysis not sent", "err", err)
		}
	}
}

func (c *Controller) onSpeechTick(ctx context.Context, now time.Time) {
	det := c.cap.speech
	switch edge := det.Sample(now); edge {
	case speech.EdgeStart:
		c.monitor.SpeechStarted()
		c.state.clearAlert()
		c.metrics.RecordSpeechEdge(ctx, edge.String())
	case speech.EdgeStop:
		c.metrics.RecordSpeechEdge(ctx, edge.String())
	}
	c.state.applySpeech(det.State(now))
}

func (c *Controller) onMonitorTick(ctx context.Context, now time.Time) {
	if !c.state.Phase.questionActive() {
		return
	}
	sp := c.state.speechAt(now)
	res := c.monitor.Tick(monitor.Input{
		Now:       now,
		Recording: c.state.Phase == PhaseRecording,
		Speech:    sp,
		Live:      c.state.Live,
	})
	c.state.applyMonitor(res, sp)

	if res.Decayed != nil {
		c.metrics.RecordDecay(ctx, "presence")
	}
	if res.EngagementDecayed {
		c.metrics.RecordDecay(ctx, "engagement")
	}
	if res.AlertRaised {
		c.metrics.RecordSilenceAlert(ctx)
		slog.Info("interview: silence alert", "session_id", c.sessionID, "silence", sp.SilenceDuration)
	}

	switch {
	case res.Advance:
		c.metrics.RecordAutoAdvance(ctx, "silence")
		slog.Info("interview: auto-advancing after prolonged silence", "session_id", c.sessionID, "question", c.state.QuestionIndex+1)
		c.advance(ctx, now, "silence")
	case c.settings.AnswerTimeLimit > 0 && now.Sub(c.state.QuestionStart) >= c.settings.AnswerTimeLimit:
		c.metrics.RecordAutoAdvance(ctx, "time_limit")
		slog.Info("interview: answer time limit reached", "session_id", c.sessionID, "question", c.state.QuestionIndex+1)
		c.advance(ctx, now, "time_limit")
	}
}

func (c *Controller) onRelayTick(ctx context.Context, now time.Time) {
	link := c.cap.link
	if link == nil || !link.Connected() {
		return
	}
	img, err := c.cap.stream.VideoFrame()
	if err != nil {
		return
	}
	if err := link.SendFrame(ctx, img, now); err != nil {
		slog.Debug("interview: frame relay failed", "err", err)
	}
}

func (c *Controller) onTransportEvent(ev transport.Event) {
	switch e := ev.(type) {
	case transport.AnalysisResult:
		snap := scoring.ApplyRemote(c.state.Live, e.Scores, c.now())
		c.state.applyRemoteScores(snap, e.DominantEmotion, e.Recommendations)
	case transport.SessionJoined:
		slog.Info("interview: joined transport session", "session_id", e.SessionID)
	case transport.ServerError:
		slog.Warn("interview: server reported error", "session_id", c.sessionID, "message", e.Message)
	case transport.Disconnected:
		c.linkUp.Store(false)
	}
}

// advance records the current answer and moves to the next question, or
// completes the session after the last one.
func (c *Controller) advance(ctx context.Context, now time.Time, reason string) {
	idx := c.state.QuestionIndex
	q := c.questions[idx]
	rec := c.deps.Aggregator.RecordAnswer(idx, q, c.state.History, c.state.Emotions, now)
	slog.Info("interview: answer recorded",
		"session_id", c.sessionID,
		"question", idx+1,
		"reason", reason,
		"valid_samples", rec.ValidSamples,
		"overall", rec.AverageScores.Overall(),
	)

	if idx+1 < len(c.questions) {
		c.beginQuestion(idx+1, now)
		return
	}
	c.complete(ctx, now)
}

func (c *Controller) complete(ctx context.Context, now time.Time) {
	c.teardown()
	c.stopMonitor()
	c.state.setPhase(PhaseSubmitting, nil)
	c.publish()

	sub, err := c.deps.Aggregator.Finalize(ctx, aggregate.Meta{
		Type:           c.settings.Type,
		TotalQuestions: len(c.questions),
		Emotions:       slices.Clone(c.state.Emotions),
	}, now)
	c.submission = &sub
	c.finishSubmit(ctx, err)
}

func (c *Controller) retrySubmit(ctx context.Context) error {
	if c.state.Phase != PhaseSubmitFailed {
		return ErrInvalidPhase
	}
	c.state.setPhase(PhaseSubmitting, nil)
	c.publish()
	err := c.deps.Aggregator.Retry(ctx)
	c.finishSubmit(ctx, err)
	return err
}

func (c *Controller) finishSubmit(ctx context.Context, err error) {
	if err != nil {
		observe.Logger(ctx).Error("interview: session submission failed", "session_id", c.sessionID, "err", err)
		c.state.setPhase(PhaseSubmitFailed, err)
		return
	}
	slog.Info("interview: session submitted", "session_id", c.sessionID, "score", c.submission.OverallScore)
	c.state.setPhase(PhaseCompleted, nil)
}

func (c *Controller) restart(ctx context.Context) {
	c.teardown()
	c.stopMonitor()
	c.deps.Aggregator.Reset()
	c.state.resetSession()
	c.submission = nil
	c.setSessionID(c.newSessionID(c.now()))
	slog.Info("interview: session restarted", "session_id", c.sessionID)
	c.loadQuestions(ctx)
}

func (c *Controller) view() View {
	s := c.state
	v := View{
		SessionID:          c.sessionID,
		Type:               c.settings.Type,
		Phase:              s.Phase,
		Err:                s.Err,
		QuestionIndex:      s.QuestionIndex,
		TotalQuestions:     len(c.questions),
		QuestionSource:     c.source,
		QuestionStart:      s.QuestionStart,
		Live:               s.Live,
		Speech:             s.Speech,
		Presence:           s.Presence,
		Alert:              s.Alert,
		Emotion:            s.Emotion,
		Emotions:           slices.Clone(s.Emotions),
		AnalysisMode:       c.deps.Analyzer.Mode().String(),
		TransportConnected: c.linkUp.Load(),
		Recommendations:    slices.Clone(s.Recommendations),
		Answers:            c.deps.Aggregator.Answers(),
	}
	if s.QuestionIndex < len(c.questions) {
		v.Question = c.questions[s.QuestionIndex]
	}
	if c.cap != nil {
		v.Level = c.cap.speech.Level()
	}
	if c.submission != nil {
		sub := *c.submission
		v.Submission = &sub
	}
	return v
}

func (c *Controller) publish() {
	v := c.view()
	select {
	case <-c.updates:
	default:
	}
	c.updates <- v
}
