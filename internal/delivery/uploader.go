package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/viva/internal/exam"
)

// ErrCanceled is the result of a delivery canceled before it succeeded.
var ErrCanceled = errors.New("delivery canceled")

// Sender performs one upload attempt.
type Sender interface {
	Upload(ctx context.Context, a Attempt) (Receipt, error)
}

// DeliveredFunc observes each successful delivery exactly once.
type DeliveredFunc func(Attempt, Receipt)

// Uploader retries each submitted answer on a fixed interval until it
// succeeds or is canceled. Each answer has its own goroutine, so at most one
// attempt per answer is in flight.
type Uploader struct {
	sender      Sender
	interval    time.Duration
	logger      *slog.Logger
	onDelivered DeliveredFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*Delivery
}

// NewUploader creates an uploader whose deliveries live until ctx ends or
// they are canceled. Deliveries outlive the engine instance that submitted them.
func NewUploader(ctx context.Context, sender Sender, interval time.Duration, logger *slog.Logger, onDelivered DeliveredFunc) *Uploader {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if onDelivered == nil {
		onDelivered = func(Attempt, Receipt) {}
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Uploader{
		sender:      sender,
		interval:    interval,
		logger:      logger,
		onDelivered: onDelivered,
		ctx:         runCtx,
		cancel:      cancel,
		active:      make(map[string]*Delivery),
	}
}

// Delivery tracks one answer until it is delivered or canceled.
type Delivery struct {
	attempt Attempt
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	attempts int
	receipt  Receipt
	err      error
}

func (d *Delivery) Attempt() Attempt {
	return d.attempt
}

// Done is closed once the delivery succeeds or is canceled.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Result returns the receipt, or ErrCanceled. Valid after Done is closed.
func (d *Delivery) Result() (Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.receipt, d.err
}

// Attempts reports how many upload attempts have started.
func (d *Delivery) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *Delivery) Cancel() {
	d.cancel()
}

// Submit starts delivering a. An empty attempt ID is filled with a UUID so
// retries of the same answer share one ID.
func (u *Uploader) Submit(a Attempt) *Delivery {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(u.ctx)
	d := &Delivery{attempt: a, cancel: cancel, done: make(chan struct{})}

	u.mu.Lock()
	u.active[a.ID] = d
	u.mu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer cancel()
		u.run(ctx, d)
	}()
	return d
}

// Retain cancels every pending delivery whose target keep rejects and
// returns how many were canceled.
func (u *Uploader) Retain(keep func(exam.Target) bool) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	canceled := 0
	for _, d := range u.active {
		if keep != nil && keep(d.attempt.Target) {
			continue
		}
		d.Cancel()
		canceled++
	}
	return canceled
}

// Pending returns the number of deliveries not yet finished.
func (u *Uploader) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.active)
}

// Close cancels all pending deliveries and waits for their goroutines.
func (u *Uploader) Close() {
	u.cancel()
	u.wg.Wait()
}

// Wait blocks until every submitted delivery has finished.
func (u *Uploader) Wait() {
	u.wg.Wait()
}

func (u *Uploader) run(ctx context.Context, d *Delivery) {
	defer func() {
		u.mu.Lock()
		delete(u.active, d.attempt.ID)
		u.mu.Unlock()
		close(d.done)
	}()

	for {
		d.mu.Lock()
		d.attempts++
		attempt := d.attempts
		d.mu.Unlock()

		uploadInflight.Inc()
		receipt, err := u.sender.Upload(ctx, d.attempt)
		uploadInflight.Dec()

		if err == nil {
			uploadsTotal.WithLabelValues("success").Inc()
			d.mu.Lock()
			d.receipt = receipt
			d.mu.Unlock()
			u.log(slog.LevelInfo, "answer delivered", d.attempt, attempt, nil)
			u.onDelivered(d.attempt, receipt)
			return
		}

		if ctx.Err() != nil {
			u.finishCanceled(d, attempt)
			return
		}
		uploadsTotal.WithLabelValues("failure").Inc()
		u.log(slog.LevelWarn, "answer upload failed; retrying", d.attempt, attempt, err)

		select {
		case <-ctx.Done():
			u.finishCanceled(d, attempt)
			return
		case <-time.After(u.interval):
		}
	}
}

func (u *Uploader) finishCanceled(d *Delivery, attempt int) {
	uploadsTotal.WithLabelValues("canceled").Inc()
	d.mu.Lock()
	d.err = ErrCanceled
	d.mu.Unlock()
	u.log(slog.LevelWarn, "answer delivery canceled", d.attempt, attempt, nil)
}

func (u *Uploader) log(level slog.Level, msg string, a Attempt, attempt int, err error) {
	if u.logger == nil {
		return
	}
	attrs := []any{
		"attempt_id", a.ID,
		"attempt", attempt,
		"room", a.Target.Room,
		"participant", a.Target.ParticipantID,
		"question", a.Target.Question.Index,
		"bytes", len(a.Payload),
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	u.logger.Log(context.Background(), level, msg, attrs...)
}
