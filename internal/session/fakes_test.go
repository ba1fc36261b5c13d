package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rbright/viva/internal/capture"
	"github.com/rbright/viva/internal/delivery"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/indicator"
	"github.com/rbright/viva/internal/playback"
	"github.com/rbright/viva/internal/spool"
	"github.com/rbright/viva/internal/status"
)

// scriptedPoller answers each poll with the next signal the test sends.
type scriptedPoller struct {
	signals chan status.Signal
	errs    chan error
}

func newScriptedPoller() *scriptedPoller {
	return &scriptedPoller{signals: make(chan status.Signal), errs: make(chan error)}
}

func (p *scriptedPoller) Poll(ctx context.Context, _ exam.Identity) (status.Signal, error) {
	select {
	case sig := <-p.signals:
		return sig, nil
	case err := <-p.errs:
		return status.Signal{}, err
	case <-ctx.Done():
		return status.Signal{}, ctx.Err()
	}
}

type fakePrompter struct {
	mu          sync.Mutex
	question    exam.Question
	failures    int
	hold        bool
	calls       int
	interrupted bool
	wg          sync.WaitGroup
}

func (p *fakePrompter) Play(_ context.Context, _ exam.Identity, cb playback.Callbacks) bool {
	p.mu.Lock()
	p.calls++
	fail := p.failures > 0
	if fail {
		p.failures--
	}
	q := p.question
	hold := p.hold
	p.interrupted = false
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if fail {
			p.emit(func() { cb.OnError(fmt.Errorf("%w: fetch failed", playback.ErrPromptUnavailable)) })
			return
		}
		p.emit(func() { cb.OnStart(q) })
		if hold {
			return
		}
		p.emit(func() { cb.OnComplete(q) })
	}()
	return true
}

func (p *fakePrompter) emit(fn func()) {
	p.mu.Lock()
	skip := p.interrupted
	p.mu.Unlock()
	if !skip {
		fn()
	}
}

func (p *fakePrompter) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupted = true
}

func (p *fakePrompter) Wait() {
	p.wg.Wait()
}

func (p *fakePrompter) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakePrompter) Interrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

type fakeStream struct {
	chunks chan []float32
	once   sync.Once
}

func newFakeStream() *fakeStream {
	s := &fakeStream{chunks: make(chan []float32, 4)}
	s.chunks <- make([]float32, 160)
	return s
}

func (s *fakeStream) Chunks() <-chan []float32 { return s.chunks }
func (s *fakeStream) SampleRate() int          { return 16000 }
func (s *fakeStream) Channels() int            { return 1 }

func (s *fakeStream) Stop() error {
	s.once.Do(func() { close(s.chunks) })
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	failures int
	opened   int
}

func (s *fakeSource) Open(context.Context) (capture.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("permission denied")
	}
	return newFakeStream(), nil
}

func (s *fakeSource) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

type fakeSender struct {
	mu            sync.Mutex
	failures      int
	block         bool
	calls         int
	transcription string
}

func (s *fakeSender) Upload(ctx context.Context, _ delivery.Attempt) (delivery.Receipt, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return delivery.Receipt{}, ctx.Err()
	}
	if fail {
		return delivery.Receipt{}, errors.New("server returned 503 Service Unavailable")
	}
	return delivery.Receipt{Transcription: s.transcription}, nil
}

func (s *fakeSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type banner struct {
	level indicator.Level
	text  string
}

type fakeIndicator struct {
	mu        sync.Mutex
	banners   []banner
	starts    int
	stops     int
	feedbacks int
	prompts   []exam.Question
}

func (f *fakeIndicator) ShowPrompt(_ context.Context, q exam.Question) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, q)
}

func (f *fakeIndicator) ShowCountdown(context.Context, int)                 {}
func (f *fakeIndicator) ShowRecording(context.Context, time.Duration, bool) {}
func (f *fakeIndicator) ShowUploading(context.Context)                      {}
func (f *fakeIndicator) Hide(context.Context)                               {}

func (f *fakeIndicator) ShowBanner(_ context.Context, level indicator.Level, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banners = append(f.banners, banner{level: level, text: text})
}

func (f *fakeIndicator) ShowFeedback(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbacks++
}

func (f *fakeIndicator) CueStart(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
}

func (f *fakeIndicator) CueStop(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeIndicator) Banners() []banner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]banner(nil), f.banners...)
}

func (f *fakeIndicator) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeIndicator) hasBanner(level indicator.Level, text string) bool {
	for _, b := range f.Banners() {
		if b.level == level && b.text == text {
			return true
		}
	}
	return false
}

type harness struct {
	id        exam.Identity
	engine    *Controller
	poller    *scriptedPoller
	prompter  *fakePrompter
	source    *fakeSource
	sender    *fakeSender
	uploader  *delivery.Uploader
	spool     *spool.Spool
	indicator *fakeIndicator

	mu        sync.Mutex
	delivered []delivery.Receipt

	cancel  context.CancelFunc
	results chan Result
}

type harnessOption func(*harness, *Options)

func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()

	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	answers, err := spool.Open(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		id:        exam.Identity{Room: "R1", ParticipantID: "p1", ParticipantName: "Ada"},
		poller:    newScriptedPoller(),
		prompter:  &fakePrompter{question: exam.Question{Index: 1}},
		source:    &fakeSource{},
		sender:    &fakeSender{transcription: "the answer"},
		spool:     answers,
		indicator: &fakeIndicator{},
		results:   make(chan Result, 1),
	}
	opts := Options{
		PollInterval:     10 * time.Millisecond,
		CountdownSeconds: 0,
		AnswerLimit:      time.Minute,
		FeedbackDelay:    10 * time.Millisecond,
	}
	for _, apply := range options {
		apply(h, &opts)
	}

	h.uploader = delivery.NewUploader(context.Background(), h.sender, 5*time.Millisecond, nil, func(_ delivery.Attempt, r delivery.Receipt) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.delivered = append(h.delivered, r)
	})
	t.Cleanup(h.uploader.Close)

	h.engine, err = NewController(h.id, opts, Deps{
		Poller:    h.poller,
		Prompter:  h.prompter,
		Source:    h.source,
		Submitter: h.uploader,
		Spool:     h.spool,
		Indicator: h.indicator,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.results <- h.engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.results:
		case <-time.After(2 * time.Second):
		}
	})
}

func (h *harness) send(t *testing.T, sig status.Signal) {
	t.Helper()
	select {
	case h.poller.signals <- sig:
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not poll for %v", sig.Code)
	}
}

func (h *harness) result(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-h.results:
		h.results <- r
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not terminate")
		return Result{}
	}
}

func (h *harness) waitState(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return string(h.engine.State()) == want }, 2*time.Second, 2*time.Millisecond,
		"engine never reached %s", want)
}

func (h *harness) Delivered() []delivery.Receipt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]delivery.Receipt(nil), h.delivered...)
}

func signal(code status.Code) status.Signal {
	return status.Signal{Code: code}
}

func withDeadline(sig status.Signal, started time.Time, limit time.Duration) status.Signal {
	sig.Started = &started
	sig.Limit = &limit
	return sig
}
