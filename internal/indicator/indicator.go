// Package indicator handles visual state notifications and audio cue playback.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/hypr"
)

// Level is the severity of a banner.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

type style struct {
	icon    int
	color   string
	urgency byte
}

const (
	colorActive     = "rgb(89b4fa)"
	colorProcessing = "rgb(cba6f7)"
	colorWarning    = "rgb(f9e2af)"
	colorError      = "rgb(f38ba8)"
	colorSuccess    = "rgb(a6e3a1)"

	stickyTimeoutMS = 300000
)

func levelStyle(l Level) style {
	switch l {
	case LevelWarning:
		return style{icon: 0, color: colorWarning, urgency: urgencyNormal}
	case LevelError:
		return style{icon: 3, color: colorError, urgency: urgencyCritical}
	default:
		return style{icon: 1, color: colorActive}
	}
}

// Notifier is the concrete indicator used by engine instances.
// It routes notifications via Hyprland or desktop DBus based on config backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu                    sync.Mutex
	lastText              string
	desktopNotificationID uint32
	soundMu               sync.Mutex
	player                cuePlayer
}

// NewNotifier creates an indicator from config.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		player:   audio.Player{MediaName: "viva indicator cue"},
	}
}

// ShowPrompt signals that the question audio is playing.
func (n *Notifier) ShowPrompt(ctx context.Context, q exam.Question) {
	n.show(ctx, style{icon: 1, color: colorProcessing}, stickyTimeoutMS, fmt.Sprintf(n.messages.prompt, q.Index))
}

// ShowCountdown displays the seconds left before recording begins.
func (n *Notifier) ShowCountdown(ctx context.Context, seconds int) {
	n.playCue(cueTick)
	n.show(ctx, style{icon: 1, color: colorActive}, stickyTimeoutMS, fmt.Sprintf(n.messages.countdown, seconds))
}

// ShowRecording displays the recording state with the time left when known.
func (n *Notifier) ShowRecording(ctx context.Context, remaining time.Duration, hasDeadline bool) {
	text := n.messages.recording
	if hasDeadline {
		text = fmt.Sprintf(n.messages.recordingLeft, formatRemaining(remaining))
	}
	n.show(ctx, style{icon: 1, color: colorActive}, stickyTimeoutMS, text)
}

// ShowUploading signals the post-capture hand-off state.
func (n *Notifier) ShowUploading(ctx context.Context) {
	n.show(ctx, style{icon: 1, color: colorProcessing}, stickyTimeoutMS, n.messages.uploading)
}

// ShowBanner displays a leveled message. Warnings and errors also emit the alert cue.
func (n *Notifier) ShowBanner(ctx context.Context, level Level, text string) {
	if text == "" {
		text = n.messages.errorText
	}
	timeout := stickyTimeoutMS
	if level != LevelInfo {
		n.playCue(cueAlert)
		timeout = n.cfg.ErrorTimeoutMS
		if timeout <= 0 {
			timeout = 1200
		}
	}
	n.show(ctx, levelStyle(level), timeout, text)
}

// ShowFeedback tells the participant their answer has been handed off.
func (n *Notifier) ShowFeedback(ctx context.Context) {
	n.show(ctx, style{icon: 5, color: colorSuccess}, n.feedbackTimeout(), n.messages.feedback)
}

// ShowTranscription displays a delivered transcription preview.
func (n *Notifier) ShowTranscription(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	n.playCue(cueComplete)
	n.show(ctx, style{icon: 5, color: colorSuccess}, n.feedbackTimeout(), fmt.Sprintf(n.messages.transcription, text))
}

// CueStart emits the recording-start cue.
func (n *Notifier) CueStart(context.Context) {
	n.playCue(cueStart)
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.mu.Lock()
	n.lastText = ""
	n.mu.Unlock()
	n.run(ctx, n.dismiss)
}

func (n *Notifier) feedbackTimeout() int {
	if n.cfg.ErrorTimeoutMS > 0 {
		return n.cfg.ErrorTimeoutMS
	}
	return 4000
}

// show replaces the current notification unless it already displays text.
func (n *Notifier) show(ctx context.Context, st style, timeoutMS int, text string) {
	if !n.cfg.Enable {
		return
	}
	n.mu.Lock()
	if n.lastText == text {
		n.mu.Unlock()
		return
	}
	n.lastText = text
	n.mu.Unlock()

	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, st, timeoutMS, text)
	})
}

func (n *Notifier) desktop() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

// notify dispatches indicator output through the configured backend.
func (n *Notifier) notify(ctx context.Context, st style, timeoutMS int, text string) error {
	if n.desktop() {
		return n.notifyDesktop(ctx, st.urgency, timeoutMS, text)
	}
	if err := hypr.DismissNotify(ctx); err != nil {
		return err
	}
	return hypr.Notify(ctx, st.icon, timeoutMS, st.color, text)
}

// dismiss removes indicator output from the configured backend.
func (n *Notifier) dismiss(ctx context.Context) error {
	if n.desktop() {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, urgency byte, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "viva-indicator"
	}

	id, err := desktopNotify(ctx, desktopNotification{
		AppName:   appName,
		ReplaceID: replaceID,
		Summary:   "Viva",
		Body:      text,
		Urgency:   urgency,
		TimeoutMS: timeoutMS,
	})
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := emitCue(ctx, n.player, kind, n.cfg); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}

// formatRemaining renders whole seconds rounded up as m:ss.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
