// Package session runs one exam engine instance: status polling, prompt
// playback, countdown, capture, and answer hand-off.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/viva/internal/capture"
	"github.com/rbright/viva/internal/deadline"
	"github.com/rbright/viva/internal/delivery"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/fsm"
	"github.com/rbright/viva/internal/indicator"
	"github.com/rbright/viva/internal/playback"
	"github.com/rbright/viva/internal/status"
)

// Outcome is how an engine instance ended.
type Outcome string

const (
	OutcomeAdvanced   Outcome = "advanced"
	OutcomeRedirected Outcome = "redirected"
	OutcomeCanceled   Outcome = "canceled"
)

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State           fsm.State
	Outcome         Outcome
	NextRoom        string
	Reason          string
	Question        exam.Question
	Answered        bool
	Transcription   string
	SamplesCaptured int
	Attempts        int
	Err             error
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Poller fetches one status signal.
type Poller interface {
	Poll(ctx context.Context, id exam.Identity) (status.Signal, error)
}

// Prompter plays question prompts.
type Prompter interface {
	Play(ctx context.Context, id exam.Identity, cb playback.Callbacks) bool
	Interrupt()
	Wait()
}

// Submitter hands finalized answers to the retrying uploader.
type Submitter interface {
	Submit(a delivery.Attempt) *delivery.Delivery
	Retain(keep func(exam.Target) bool) int
}

// Spooler persists a finalized container before its first upload attempt.
type Spooler interface {
	Put(target exam.Target, attemptID string, payload []byte) (string, error)
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowPrompt(ctx context.Context, q exam.Question)
	ShowCountdown(ctx context.Context, seconds int)
	ShowRecording(ctx context.Context, remaining time.Duration, hasDeadline bool)
	ShowUploading(ctx context.Context)
	ShowBanner(ctx context.Context, level indicator.Level, text string)
	ShowFeedback(ctx context.Context)
	CueStart(ctx context.Context)
	CueStop(ctx context.Context)
	Hide(ctx context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowPrompt(context.Context, exam.Question)                     {}
func (noopIndicator) ShowCountdown(context.Context, int)                            {}
func (noopIndicator) ShowRecording(context.Context, time.Duration, bool)            {}
func (noopIndicator) ShowUploading(context.Context)                                 {}
func (noopIndicator) ShowBanner(context.Context, indicator.Level, string)           {}
func (noopIndicator) ShowFeedback(context.Context)                                  {}
func (noopIndicator) CueStart(context.Context)                                      {}
func (noopIndicator) CueStop(context.Context)                                       {}
func (noopIndicator) Hide(context.Context)                                          {}

// Options are the engine's timing knobs.
type Options struct {
	PollInterval     time.Duration
	DisplayInterval  time.Duration
	CountdownSeconds int
	// AnswerLimit bounds a recording when the server has not reported a deadline.
	AnswerLimit   time.Duration
	FeedbackDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.DisplayInterval <= 0 {
		o.DisplayInterval = time.Second
	}
	if o.CountdownSeconds < 0 {
		o.CountdownSeconds = 0
	}
	if o.AnswerLimit <= 0 {
		o.AnswerLimit = time.Minute
	}
	if o.FeedbackDelay <= 0 {
		o.FeedbackDelay = 4 * time.Second
	}
	return o
}

// Deps are the collaborators of one engine instance.
type Deps struct {
	Poller    Poller
	Prompter  Prompter
	Source    capture.Source
	Recording capture.Notifier
	Submitter Submitter
	Spool     Spooler
	Indicator Indicator
	Logger    *slog.Logger
}

// Controller is one engine instance bound to a single identity. All engine
// state is owned by the Run goroutine; other goroutines talk to it through
// the events channel.
type Controller struct {
	id        exam.Identity
	opts      Options
	poller    Poller
	prompter  Prompter
	recorder  *capture.Controller
	submitter Submitter
	spool     Spooler
	indicator Indicator
	logger    *slog.Logger

	mu    sync.RWMutex
	state fsm.State

	events chan event
	done   chan struct{}
	wg     sync.WaitGroup

	// Loop-owned.
	tracker       deadline.Tracker
	countdown     deadline.Countdown
	question      exam.Question
	pollInFlight  bool
	promptFailed  bool
	captureFailed bool
	delivery      *delivery.Delivery
	result        Result
	countdownT    *time.Timer
	feedbackT     *time.Timer
}

// NewController constructs an engine with safe default fallbacks.
func NewController(id exam.Identity, opts Options, deps Deps) (*Controller, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if deps.Poller == nil || deps.Prompter == nil || deps.Source == nil || deps.Submitter == nil {
		return nil, errors.New("session requires poller, prompter, source, and submitter")
	}
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}

	c := &Controller{
		id:        id,
		opts:      opts.withDefaults(),
		poller:    deps.Poller,
		prompter:  deps.Prompter,
		submitter: deps.Submitter,
		spool:     deps.Spool,
		indicator: deps.Indicator,
		logger:    deps.Logger,
		state:     fsm.StateIdle,
		events:    make(chan event, 16),
		done:      make(chan struct{}),
	}
	c.recorder = capture.NewController(deps.Source, deps.Recording, deps.Logger, func() {
		c.post(event{kind: eventDeadline})
	})
	return c, nil
}

// Identity returns the identity this engine serves.
func (c *Controller) Identity() exam.Identity {
	return c.id
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// post delivers an event to the loop, or drops it once the loop has exited.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Run drives the engine until a terminal status signal or ctx cancellation.
func (c *Controller) Run(ctx context.Context) Result {
	c.result = Result{StartedAt: time.Now()}

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(c.done)
		c.wg.Wait()
		c.prompter.Wait()
		c.recorder.Wait()
	}()

	if err := c.transition(fsm.EventStart); err != nil {
		return c.finish(err)
	}

	pollTicker := time.NewTicker(c.opts.PollInterval)
	defer pollTicker.Stop()
	displayTicker := time.NewTicker(c.opts.DisplayInterval)
	defer displayTicker.Stop()
	defer c.stopTimers()

	c.startPoll(runCtx)
	c.requestPrompt(runCtx)

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			c.result.Outcome = OutcomeCanceled
			return c.finish(ctx.Err())
		case <-pollTicker.C:
			c.startPoll(runCtx)
			if c.State() == fsm.StateAwaitingPrompt && c.promptFailed {
				c.requestPrompt(runCtx)
			}
		case <-displayTicker.C:
			c.tickDisplay(runCtx)
		case <-timerC(c.countdownT):
			c.countdownT = nil
			c.startRecording(runCtx)
		case <-timerC(c.feedbackT):
			c.feedbackT = nil
			c.indicator.ShowFeedback(runCtx)
		case ev := <-c.events:
			if c.handle(runCtx, ev) {
				return c.finish(nil)
			}
		}
	}
}

// handle applies one event and reports whether the engine reached a
// terminal state.
func (c *Controller) handle(ctx context.Context, ev event) bool {
	switch ev.kind {
	case eventPoll:
		c.pollInFlight = false
		return c.applyPoll(ctx, ev.signal, ev.err)
	case eventPromptStarted:
		c.question = ev.question
		if err := c.transition(fsm.EventPromptReady); err != nil {
			c.logError("prompt start transition failed", err)
			return false
		}
		c.indicator.ShowPrompt(ctx, ev.question)
	case eventPromptDone:
		c.question = ev.question
		if err := c.transition(fsm.EventPlayed); err != nil {
			c.logError("prompt done transition failed", err)
			return false
		}
		c.beginCountdown(ctx)
	case eventPromptFailed:
		c.promptFailed = true
		if c.State() == fsm.StatePlayingPrompt {
			_ = c.transition(fsm.EventFail)
		}
		c.logError("prompt playback failed", ev.err)
		c.indicator.ShowBanner(ctx, indicator.LevelError, "Could not load the question audio; retrying.")
	case eventDeadline:
		c.stop(ctx, capture.ReasonDeadline)
	case eventDelivered:
		c.applyDelivered(ctx, ev.delivery)
	case eventControl:
		ev.reply <- c.control(ctx, ev.command)
	}
	return false
}

func (c *Controller) applyPoll(ctx context.Context, sig status.Signal, err error) bool {
	if err != nil {
		if errors.Is(err, delivery.ErrProtocol) {
			c.terminate(status.Verdict{Action: status.ActionRedirect, Reason: "protocol error"})
			return true
		}
		c.logWarn("status poll failed", "error", err.Error())
		c.indicator.ShowBanner(ctx, indicator.LevelInfo, "Reconnecting to the exam server…")
		return false
	}

	verdict := status.Classify(sig)
	if verdict.Deadline != nil {
		c.tracker.Refresh(*verdict.Deadline, time.Now())
		if remaining, ok := c.tracker.Remaining(time.Now()); ok {
			c.recorder.Rearm(remaining)
		}
	}

	switch verdict.Action {
	case status.ActionNone:
	case status.ActionWarn:
		c.indicator.ShowBanner(ctx, indicator.LevelWarning, status.WarningMessage(c.id.Premium))
	case status.ActionForceStop:
		c.forceStop(ctx)
	case status.ActionAdvance, status.ActionRedirect:
		c.terminate(verdict)
		return true
	}
	return false
}

// forceStop ends the answer window regardless of local timer state.
func (c *Controller) forceStop(ctx context.Context) {
	switch c.State() {
	case fsm.StateRecording:
		c.stop(ctx, capture.ReasonHardTimeout)
	case fsm.StateAwaitingPrompt, fsm.StatePlayingPrompt, fsm.StateCountdown:
		c.prompter.Interrupt()
		c.stopTimers()
		if err := c.transition(fsm.EventAbort); err != nil {
			c.logError("abort transition failed", err)
			return
		}
		capturesTotal.WithLabelValues("aborted").Inc()
		c.indicator.ShowBanner(ctx, indicator.LevelWarning, "Time is up for this question.")
	}
}

func (c *Controller) beginCountdown(ctx context.Context) {
	c.countdown.Start(c.opts.CountdownSeconds)
	c.indicator.ShowCountdown(ctx, c.countdown.Value())
	c.countdownT = time.NewTimer(time.Duration(c.opts.CountdownSeconds) * time.Second)
}

func (c *Controller) startRecording(ctx context.Context) {
	if c.State() != fsm.StateCountdown {
		return
	}

	now := time.Now()
	remaining, ok := c.tracker.Remaining(now)
	if !ok {
		c.tracker.Refresh(deadline.Deadline{Anchor: now, Limit: c.opts.AnswerLimit}, now)
		remaining = c.opts.AnswerLimit
	}

	started, err := c.recorder.Start(ctx, c.id, c.question, remaining)
	if err != nil {
		c.captureFailed = true
		c.logError("capture start failed", err)
		c.indicator.ShowBanner(ctx, indicator.LevelWarning, "Microphone unavailable. Allow access, then run `viva retry`.")
		return
	}
	if !started {
		return
	}
	c.captureFailed = false
	if err := c.transition(fsm.EventRecord); err != nil {
		c.logError("record transition failed", err)
		c.recorder.Abort()
		return
	}
	c.indicator.CueStart(ctx)
	c.indicator.ShowRecording(ctx, remaining, true)
}

// stop is the single stop path for user, deadline and hard-timeout triggers.
func (c *Controller) stop(ctx context.Context, reason capture.Reason) {
	if c.State() != fsm.StateRecording {
		return
	}
	if err := c.transition(fsm.EventStop); err != nil {
		c.logError("stop transition failed", err)
		return
	}

	answer, ok, err := c.recorder.Stop(reason)
	if !ok || err != nil {
		if err == nil {
			err = errors.New("no recording to finalize")
		}
		c.logError("answer finalize failed", err)
		_ = c.transition(fsm.EventFail)
		c.result.Err = err
		c.indicator.ShowBanner(ctx, indicator.LevelError, "Your answer could not be saved.")
		return
	}
	capturesTotal.WithLabelValues(string(reason)).Inc()
	c.indicator.CueStop(ctx)

	attempt := delivery.Attempt{
		ID:      uuid.NewString(),
		Target:  answer.Target,
		Name:    c.id.ParticipantName,
		Email:   c.id.Email,
		Payload: answer.Container,
	}
	if c.spool != nil {
		path, err := c.spool.Put(answer.Target, attempt.ID, answer.Container)
		if err != nil {
			c.logError("answer spool failed", err)
		} else {
			attempt.SpoolPath = path
		}
	}

	c.delivery = c.submitter.Submit(attempt)
	if err := c.transition(fsm.EventFinalized); err != nil {
		c.logError("finalized transition failed", err)
	}
	c.result.Answered = true
	c.result.Question = answer.Target.Question
	c.result.SamplesCaptured = answer.Samples
	c.logInfo("answer finalized",
		"question", answer.Target.Question.Index,
		"reason", string(reason),
		"samples", answer.Samples,
		"attempt_id", attempt.ID,
	)

	c.indicator.ShowUploading(ctx)
	c.feedbackT = time.NewTimer(c.opts.FeedbackDelay)

	d := c.delivery
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-d.Done():
			c.post(event{kind: eventDelivered, delivery: d})
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) applyDelivered(ctx context.Context, d *delivery.Delivery) {
	if d != c.delivery {
		return
	}
	c.result.Attempts = d.Attempts()
	receipt, err := d.Result()
	if err != nil {
		return
	}
	c.result.Transcription = receipt.Transcription
	if err := c.transition(fsm.EventDelivered); err != nil {
		c.logError("delivered transition failed", err)
		return
	}
	c.indicator.Hide(ctx)
}

func (c *Controller) tickDisplay(ctx context.Context) {
	switch c.State() {
	case fsm.StateCountdown:
		if c.countdownT != nil {
			c.indicator.ShowCountdown(ctx, c.countdown.Tick())
		}
	case fsm.StateRecording:
		remaining, ok := c.tracker.Remaining(time.Now())
		c.indicator.ShowRecording(ctx, remaining, ok)
	}
}

// terminate tears the instance down for an advance or redirect verdict.
func (c *Controller) terminate(verdict status.Verdict) {
	if err := c.transition(fsm.EventRedirect); err != nil {
		c.logError("redirect transition failed", err)
	}
	c.teardown()

	next := c.id
	advanced := verdict.Action == status.ActionAdvance
	if advanced {
		next = c.id.WithRoom(verdict.Room)
		c.result.Outcome = OutcomeAdvanced
		c.result.NextRoom = verdict.Room
	} else {
		c.result.Outcome = OutcomeRedirected
	}
	c.result.Reason = verdict.Reason
	redirectsTotal.WithLabelValues(string(c.result.Outcome)).Inc()

	// Pending deliveries survive only when the destination is still the
	// room and participant they address.
	canceled := c.submitter.Retain(func(target exam.Target) bool {
		return advanced && target.SameParticipant(next)
	})
	c.logInfo("engine terminated",
		"outcome", string(c.result.Outcome),
		"reason", verdict.Reason,
		"next_room", verdict.Room,
		"deliveries_canceled", canceled,
	)
}

// teardown cancels every timer and releases playback and capture.
func (c *Controller) teardown() {
	c.stopTimers()
	c.prompter.Interrupt()
	if c.recorder.Abort() {
		capturesTotal.WithLabelValues("aborted").Inc()
	}
}

func (c *Controller) stopTimers() {
	if c.countdownT != nil {
		c.countdownT.Stop()
		c.countdownT = nil
	}
	if c.feedbackT != nil {
		c.feedbackT.Stop()
		c.feedbackT = nil
	}
}

func (c *Controller) startPoll(ctx context.Context) {
	if c.pollInFlight {
		return
	}
	c.pollInFlight = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		sig, err := c.poller.Poll(ctx, c.id)
		c.post(event{kind: eventPoll, signal: sig, err: err})
	}()
}

func (c *Controller) requestPrompt(ctx context.Context) {
	c.promptFailed = false
	c.prompter.Play(ctx, c.id, playback.Callbacks{
		OnStart: func(q exam.Question) {
			c.post(event{kind: eventPromptStarted, question: q})
		},
		OnComplete: func(q exam.Question) {
			c.post(event{kind: eventPromptDone, question: q})
		},
		OnError: func(err error) {
			c.post(event{kind: eventPromptFailed, err: err})
		},
	})
}

func (c *Controller) finish(err error) Result {
	c.result.State = c.State()
	if err != nil && c.result.Err == nil {
		c.result.Err = err
	}
	if c.result.Question == (exam.Question{}) {
		c.result.Question = c.question
	}
	c.result.FinishedAt = time.Now()
	return c.result
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (c *Controller) logInfo(msg string, attrs ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Info(msg, append(c.baseAttrs(), attrs...)...)
}

func (c *Controller) logWarn(msg string, attrs ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(msg, append(c.baseAttrs(), attrs...)...)
}

func (c *Controller) logError(msg string, err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Error(msg, append(c.baseAttrs(), "error", err.Error())...)
}

func (c *Controller) baseAttrs() []any {
	return []any{"room", c.id.Room, "participant", c.id.ParticipantID, "state", string(c.State())}
}
