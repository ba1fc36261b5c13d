// Package playback fetches and plays question prompts.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/viva/internal/delivery"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/wav"
)

// ErrPromptUnavailable wraps every fetch or decode failure.
var ErrPromptUnavailable = errors.New("prompt unavailable")

// Fetcher retrieves the active prompt for a participant.
type Fetcher interface {
	FetchPrompt(ctx context.Context, id exam.Identity) (delivery.Prompt, error)
}

// Player plays one canonical container to completion.
type Player interface {
	Play(ctx context.Context, container []byte) error
}

// Notifier is told when a prompt begins playing.
type Notifier interface {
	NotifyPlaying(ctx context.Context, id exam.Identity, q exam.Question) error
}

// Callbacks receive the progress of one Play call. OnStart fires once the
// prompt is fetched and decoded; then at most one of OnComplete and OnError
// fires. None fire after Interrupt.
type Callbacks struct {
	OnStart    func(exam.Question)
	OnComplete func(exam.Question)
	OnError    func(error)
}

// Controller plays at most one prompt at a time.
type Controller struct {
	fetcher  Fetcher
	decoder  wav.Decoder
	player   Player
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	playing  bool
	gen      uint64
	cancel   context.CancelFunc
	question exam.Question
	wg       sync.WaitGroup
}

func NewController(fetcher Fetcher, decoder wav.Decoder, player Player, notifier Notifier, logger *slog.Logger) *Controller {
	return &Controller{
		fetcher:  fetcher,
		decoder:  decoder,
		player:   player,
		notifier: notifier,
		logger:   logger,
	}
}

// Play starts fetching and playing the prompt for id. It returns false
// without side effects when a prompt is already playing.
func (c *Controller) Play(ctx context.Context, id exam.Identity, cb Callbacks) bool {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.playing = true
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		question, err := c.run(runCtx, id, cb.OnStart)
		if !c.finish(runCtx, gen) {
			return
		}
		if err != nil {
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return
		}
		if cb.OnComplete != nil {
			cb.OnComplete(question)
		}
	}()
	return true
}

// Interrupt stops the active prompt. No callback fires for it.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.playing = false
	c.cancel()
}

func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Question returns the most recently fetched question reference.
func (c *Controller) Question() exam.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.question
}

// Wait blocks until background playback and notifications have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// finish clears the playing flag for run gen and reports whether its
// callbacks may fire.
func (c *Controller) finish(ctx context.Context, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.playing = false
	return ctx.Err() == nil
}

func (c *Controller) run(ctx context.Context, id exam.Identity, onStart func(exam.Question)) (exam.Question, error) {
	prompt, err := c.fetcher.FetchPrompt(ctx, id)
	if err != nil {
		return exam.Question{}, fmt.Errorf("%w: %w", ErrPromptUnavailable, err)
	}

	c.mu.Lock()
	if prompt.HasQuestion {
		c.question = prompt.Question
	}
	question := c.question
	c.mu.Unlock()

	container, err := c.toContainer(ctx, prompt)
	if err != nil {
		return question, fmt.Errorf("%w: %w", ErrPromptUnavailable, err)
	}

	if ctx.Err() != nil {
		return question, ctx.Err()
	}
	if onStart != nil {
		onStart(question)
	}

	if c.notifier != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.notifier.NotifyPlaying(ctx, id, question); err != nil && c.logger != nil {
				c.logger.Warn("prompt playing notification failed", "question", question.Index, "error", err.Error())
			}
		}()
	}

	if err := c.player.Play(ctx, container); err != nil {
		return question, fmt.Errorf("play prompt: %w", err)
	}
	return question, nil
}

// toContainer converts a prompt's transport encoding into a playable container.
func (c *Controller) toContainer(ctx context.Context, prompt delivery.Prompt) ([]byte, error) {
	switch prompt.Format {
	case "wav":
		if _, _, err := wav.ParseHeader(prompt.Audio); err != nil {
			return nil, err
		}
		return prompt.Audio, nil
	case "pcm":
		return wav.Wrap(prompt.Audio, wav.Format{
			SampleRate:    prompt.SampleRate,
			BitsPerSample: prompt.Bits,
			Channels:      prompt.Channels,
		})
	default:
		if c.decoder == nil {
			return nil, fmt.Errorf("no decoder for %q audio", prompt.Format)
		}
		return wav.DecodeToContainer(ctx, c.decoder, prompt.Audio)
	}
}
