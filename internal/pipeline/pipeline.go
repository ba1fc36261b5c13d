// Package pipeline wires config, platform audio, and the session server into engine instances.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/capture"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/delivery"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/playback"
	"github.com/rbright/viva/internal/session"
	"github.com/rbright/viva/internal/spool"
	"github.com/rbright/viva/internal/wav"
)

// Pipeline owns the components shared by every engine instance of one run:
// the server client, the retrying uploader, and the answer spool. Engine
// instances come and go on advance; pending deliveries outlive them.
type Pipeline struct {
	cfg       config.Config
	logger    *slog.Logger
	client    *delivery.Client
	uploader  *delivery.Uploader
	spool     *spool.Spool
	source    capture.Source
	player    playback.Player
	indicator session.Indicator
}

// Options overrides platform components. Zero values select the pulse
// backed defaults.
type Options struct {
	Indicator   session.Indicator
	Source      capture.Source
	Player      playback.Player
	OnDelivered delivery.DeliveredFunc
}

// New builds the shared components. Deliveries are bound to ctx.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*Pipeline, error) {
	routes, err := config.ResolveRoutes(cfg.Server)
	if err != nil {
		return nil, err
	}

	spoolDir, err := config.ResolveSpoolDir(cfg)
	if err != nil {
		return nil, err
	}
	answers, err := spool.Open(spoolDir)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		logger:    logger,
		client:    delivery.NewClient(cfg.Server.BaseURL, routes, time.Duration(cfg.Server.TimeoutMS)*time.Millisecond, logger),
		spool:     answers,
		source:    opts.Source,
		player:    opts.Player,
		indicator: opts.Indicator,
	}
	if p.source == nil {
		p.source = capture.SourceFunc(p.openInput)
	}
	if p.player == nil {
		p.player = audio.Player{MediaName: "viva question prompt"}
	}

	onDelivered := opts.OnDelivered
	p.uploader = delivery.NewUploader(ctx, p.client, time.Duration(cfg.Session.RetryIntervalMS)*time.Millisecond, logger,
		func(a delivery.Attempt, r delivery.Receipt) {
			if a.SpoolPath != "" {
				if err := p.spool.Remove(a.SpoolPath); err != nil {
					p.logWarn("unable to remove delivered answer", "path", a.SpoolPath, "error", err.Error())
				}
			}
			if onDelivered != nil {
				onDelivered(a, r)
			}
		})
	return p, nil
}

// Engine builds one engine instance bound to id.
func (p *Pipeline) Engine(id exam.Identity) (*session.Controller, error) {
	decoder := wav.CommandDecoder{
		Argv:       p.cfg.Decoder.Cmd.Argv,
		SampleRate: p.cfg.Decoder.SampleRate,
		Channels:   p.cfg.Decoder.Channels,
	}
	prompter := playback.NewController(p.client, decoder, p.player, p.client, p.logger)

	var spooler session.Spooler = p.spool
	if p.cfg.Debug.EnableAudioDump {
		spooler = debugSpooler{next: p.spool, logger: p.logger}
	}

	return session.NewController(id, session.Options{
		PollInterval:     time.Duration(p.cfg.Session.PollIntervalMS) * time.Millisecond,
		CountdownSeconds: p.cfg.Session.CountdownSeconds,
		AnswerLimit:      time.Duration(p.cfg.Session.AnswerLimitMS) * time.Millisecond,
		FeedbackDelay:    time.Duration(p.cfg.Session.FeedbackDelayMS) * time.Millisecond,
	}, session.Deps{
		Poller:    p.client,
		Prompter:  prompter,
		Source:    p.source,
		Recording: p.client,
		Submitter: p.uploader,
		Spool:     spooler,
		Indicator: p.indicator,
		Logger:    p.logger,
	})
}

// Uploader returns the uploader shared across engine instances.
func (p *Pipeline) Uploader() *delivery.Uploader {
	return p.uploader
}

// Spool returns the answer spool.
func (p *Pipeline) Spool() *spool.Spool {
	return p.spool
}

// Close cancels pending deliveries and waits for their goroutines.
func (p *Pipeline) Close() {
	p.uploader.Close()
}

// openInput resolves the configured device and starts a pulse record stream.
func (p *Pipeline) openInput(ctx context.Context) (capture.Stream, error) {
	selection, err := audio.SelectDevice(ctx, p.cfg.Audio.Input, p.cfg.Audio.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" {
		p.logWarn(selection.Warning)
	}

	stream, err := audio.StartCapture(ctx, selection.Device, p.cfg.Audio.SampleRate, p.cfg.Audio.Channels)
	if err != nil {
		return nil, err
	}
	if p.logger != nil {
		p.logger.Info("capture started", "device", describeDevice(selection.Device), "fallback", selection.Fallback)
	}
	return stream, nil
}

// debugSpooler copies every finalized container into the debug directory.
type debugSpooler struct {
	next   session.Spooler
	logger *slog.Logger
}

func (d debugSpooler) Put(target exam.Target, attemptID string, payload []byte) (string, error) {
	d.dump(target, payload)
	return d.next.Put(target, attemptID, payload)
}

func (d debugSpooler) dump(target exam.Target, payload []byte) {
	file, err := createDebugFile(fmt.Sprintf("answer-q%d", target.Question.Index), "wav")
	if err != nil {
		d.warn("unable to create debug audio dump", err)
		return
	}
	defer file.Close()

	if _, err := file.Write(payload); err != nil {
		d.warn("unable to write debug audio dump", err)
	}
}

func (d debugSpooler) warn(msg string, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Warn(msg, "error", err.Error())
}

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

func (p *Pipeline) logWarn(message string, attrs ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Warn(message, attrs...)
}

// createDebugFile creates timestamped debug artifacts under state/viva/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "viva", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
