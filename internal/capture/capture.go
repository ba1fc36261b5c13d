// Package capture owns the record/stop lifecycle of one answer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/viva/internal/deadline"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/fsm"
	"github.com/rbright/viva/internal/wav"
)

// ErrDeviceUnavailable wraps failures to acquire the input device.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// Stream is an open input stream. Stop flushes and closes Chunks.
type Stream interface {
	Chunks() <-chan []float32
	SampleRate() int
	Channels() int
	Stop() error
}

// Source opens the platform input device.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Stream, error)

func (f SourceFunc) Open(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// Notifier is told when capture begins.
type Notifier interface {
	NotifyRecording(ctx context.Context, id exam.Identity, q exam.Question) error
}

// Reason names what triggered a stop.
type Reason string

const (
	ReasonUser        Reason = "user"
	ReasonDeadline    Reason = "deadline"
	ReasonHardTimeout Reason = "hard_timeout"
)

// Answer is one finalized container and its provenance.
type Answer struct {
	Target    exam.Target
	Container []byte
	Reason    Reason
	Samples   int
	StartedAt time.Time
	StoppedAt time.Time
}

// Controller moves through Armed, Recording and Stopped. Every stop trigger
// goes through Stop, so one recording yields at most one Answer.
type Controller struct {
	source   Source
	notifier Notifier
	logger   *slog.Logger
	timer    *deadline.Timer

	mu        sync.Mutex
	state     fsm.CaptureState
	stream    Stream
	collected chan [][]float32
	target    exam.Target
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewController creates an armed controller. onExpire runs on its own
// goroutine when the armed deadline passes during a recording.
func NewController(source Source, notifier Notifier, logger *slog.Logger, onExpire func()) *Controller {
	return &Controller{
		source:   source,
		notifier: notifier,
		logger:   logger,
		timer:    deadline.NewTimer(onExpire),
		state:    fsm.CaptureArmed,
	}
}

// Start begins recording an answer for q with remaining time on the clock.
// It returns false when a recording is already open.
func (c *Controller) Start(ctx context.Context, id exam.Identity, q exam.Question, remaining time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == fsm.CaptureRecording {
		return false, nil
	}
	if c.state == fsm.CaptureStopped {
		next, err := fsm.CaptureTransition(c.state, fsm.EventRearm)
		if err != nil {
			return false, err
		}
		c.state = next
	}

	// Stale chunks from an earlier attempt are never carried forward.
	c.collected = nil

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := c.source.Open(runCtx)
	if err != nil {
		cancel()
		return false, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	next, err := fsm.CaptureTransition(c.state, fsm.EventStart)
	if err != nil {
		cancel()
		_ = stream.Stop()
		return false, err
	}
	c.state = next
	c.stream = stream
	c.cancel = cancel
	c.target = id.Target(q)
	c.startedAt = time.Now()
	c.collected = make(chan [][]float32, 1)

	c.wg.Add(1)
	go func(chunks <-chan []float32, out chan<- [][]float32) {
		defer c.wg.Done()
		var buffered [][]float32
		for chunk := range chunks {
			buffered = append(buffered, chunk)
		}
		out <- buffered
	}(stream.Chunks(), c.collected)

	if c.notifier != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.notifier.NotifyRecording(runCtx, id, q); err != nil && c.logger != nil {
				c.logger.Warn("recording notification failed", "question", q.Index, "error", err.Error())
			}
		}()
	}

	c.timer.Arm(remaining)
	return true, nil
}

// Rearm reschedules the deadline expiry of the open recording.
func (c *Controller) Rearm(remaining time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != fsm.CaptureRecording {
		return
	}
	c.timer.Arm(remaining)
}

// Stop finalizes the open recording into an Answer. It returns false when
// nothing was recording. Buffered chunks are released before returning.
func (c *Controller) Stop(reason Reason) (Answer, bool, error) {
	stream, collected, ok := c.close(fsm.EventStop)
	if !ok {
		return Answer{}, false, nil
	}

	if err := stream.Stop(); err != nil && c.logger != nil {
		c.logger.Warn("capture stream stop failed", "error", err.Error())
	}
	chunks := <-collected

	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	samples := make([]float32, 0, total)
	for i, chunk := range chunks {
		samples = append(samples, chunk...)
		chunks[i] = nil
	}
	channels := stream.Channels()
	if rem := len(samples) % channels; rem != 0 {
		samples = samples[:len(samples)-rem]
	}

	c.mu.Lock()
	answer := Answer{
		Target:    c.target,
		Reason:    reason,
		Samples:   len(samples),
		StartedAt: c.startedAt,
		StoppedAt: time.Now(),
	}
	c.mu.Unlock()

	container, err := wav.Encode(samples, stream.SampleRate(), channels)
	if err != nil {
		return answer, true, fmt.Errorf("encode answer: %w", err)
	}
	answer.Container = container
	return answer, true, nil
}

// Abort discards the open recording without producing an Answer.
func (c *Controller) Abort() bool {
	stream, collected, ok := c.close(fsm.EventAbort)
	if !ok {
		return false
	}
	_ = stream.Stop()
	<-collected
	return true
}

func (c *Controller) close(event fsm.Event) (Stream, chan [][]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != fsm.CaptureRecording {
		return nil, nil, false
	}
	next, err := fsm.CaptureTransition(c.state, event)
	if err != nil {
		return nil, nil, false
	}
	c.state = next
	c.timer.Stop()
	c.cancel()

	stream, collected := c.stream, c.collected
	c.stream = nil
	c.collected = nil
	return stream, collected, true
}

func (c *Controller) State() fsm.CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Recording() bool {
	return c.State() == fsm.CaptureRecording
}

// Wait blocks until background goroutines have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}
