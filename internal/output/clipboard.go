// Package output publishes delivered transcriptions (stdout and clipboard).
package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/transcript"
)

// Sink writes each delivered transcription to an output stream and,
// when enabled, the clipboard.
type Sink struct {
	out       io.Writer
	clipboard []string
	format    transcript.Options
	logger    *slog.Logger

	mu sync.Mutex
}

// NewSink constructs a transcription sink from runtime config.
func NewSink(cfg config.Config, out io.Writer, logger *slog.Logger) *Sink {
	s := &Sink{
		out:    out,
		format: transcript.Options{CapitalizeSentences: cfg.Transcript.CapitalizeSentences},
		logger: logger,
	}
	if cfg.Output.Clipboard {
		s.clipboard = cfg.Clipboard.Argv
	}
	return s
}

// Publish formats text, prints it labeled with its question, and copies it to
// the clipboard. Clipboard failures are logged, never returned. It returns the
// formatted text.
func (s *Sink) Publish(ctx context.Context, target exam.Target, text string) (string, error) {
	formatted := transcript.Normalize(text, s.format)
	if formatted == "" {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out != nil {
		if _, err := fmt.Fprintf(s.out, "%s %s: %s\n", target.Room, target.Question, formatted); err != nil {
			return formatted, fmt.Errorf("write transcription: %w", err)
		}
	}

	if len(s.clipboard) > 0 {
		clipboardCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := runCommandWithInput(clipboardCtx, s.clipboard, formatted); err != nil {
			s.logClipboardFailure(err)
		}
	}
	return formatted, nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

func (s *Sink) logClipboardFailure(err error) {
	if s.logger == nil || err == nil {
		return
	}
	s.logger.Error("clipboard update failed; transcription was printed", "error", err.Error())
}
