// Package app dispatches viva commands and runs engine instances.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/cli"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/delivery"
	"github.com/rbright/viva/internal/doctor"
	"github.com/rbright/viva/internal/exam"
	"github.com/rbright/viva/internal/indicator"
	"github.com/rbright/viva/internal/ipc"
	"github.com/rbright/viva/internal/logging"
	"github.com/rbright/viva/internal/output"
	"github.com/rbright/viva/internal/pipeline"
	"github.com/rbright/viva/internal/session"
	"github.com/rbright/viva/internal/version"
)

const forwardTimeout = 220 * time.Millisecond

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Platform overrides the pulse backed capture and playback in tests.
	Platform pipeline.Options
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("viva"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("viva"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(parsed.Verbose || cfgLoaded.Config.Debug.Verbose)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandRetry:
		return r.forwardOrFail(ctx, ipc.CommandRetry)
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, parsed.Run, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		kind := "mic"
		if device.Monitor {
			kind = "monitor"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | kind=%s | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			kind,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, ipc.CommandStatus, forwardTimeout)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintln(r.Stdout, formatStatus(resp))
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

// formatStatus renders a status reply as one line.
func formatStatus(resp ipc.Response) string {
	state := resp.State
	if state == "" {
		state = "idle"
	}
	parts := []string{state}
	if resp.Room != "" {
		parts = append(parts, "room="+resp.Room)
	}
	if resp.Question != nil {
		parts = append(parts, fmt.Sprintf("question=%d", *resp.Question))
	}
	if resp.RemainingMS != nil {
		remaining := time.Duration(*resp.RemainingMS) * time.Millisecond
		parts = append(parts, "remaining="+remaining.Round(100*time.Millisecond).String())
	}
	return strings.Join(parts, " ")
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, command, forwardTimeout)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active viva engine\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRun owns the control socket and mounts engine instances until one
// is redirected. An advance re-mounts with the destination room.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, flags cli.RunFlags, logger *slog.Logger) int {
	id := exam.Identity{
		Room:            flags.Room,
		ParticipantID:   flags.Participant,
		ParticipantName: flags.Name,
		Email:           flags.Email,
		Premium:         flags.Premium,
	}
	if err := id.Validate(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		if err := ipc.Release(listener, socketPath); err != nil {
			logger.Warn("release control socket failed", "error", err.Error())
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifier := indicator.NewNotifier(cfg.Indicator, logger)
	sink := output.NewSink(cfg, r.Stdout, logger)

	opts := r.Platform
	opts.Indicator = notifier
	opts.OnDelivered = func(a delivery.Attempt, receipt delivery.Receipt) {
		text, err := sink.Publish(runCtx, a.Target, receipt.Transcription)
		if err != nil {
			logger.Warn("transcription output failed", "attempt_id", a.ID, "error", err.Error())
		}
		notifier.ShowTranscription(runCtx, text)
	}

	pipe, err := pipeline.New(runCtx, cfg, logger, opts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer pipe.Close()

	slot := &engineSlot{}
	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		if err := ipc.Serve(groupCtx, listener, slot); err != nil {
			return fmt.Errorf("ipc server failed: %w", err)
		}
		return nil
	})

	if addr := strings.TrimSpace(cfg.Metrics.Listen); addr != "" {
		server := metricsServer(addr)
		metricsListener, err := net.Listen("tcp", addr)
		if err != nil {
			cancel()
			_ = group.Wait()
			fmt.Fprintf(r.Stderr, "error: metrics listener: %v\n", err)
			return 1
		}
		logger.Info("metrics listening", "addr", metricsListener.Addr().String())
		group.Go(func() error {
			if err := server.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			return server.Shutdown(shutdownCtx)
		})
	}

	var final session.Result
	group.Go(func() error {
		// The engine loop ending stops the socket and metrics servers.
		defer cancel()
		result, err := r.mountEngines(groupCtx, pipe, slot, id, logger)
		final = result
		return err
	})

	if err := group.Wait(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	switch final.Outcome {
	case session.OutcomeRedirected:
		fmt.Fprintf(r.Stdout, "session ended: %s\n", final.Reason)
		return 0
	case session.OutcomeCanceled:
		fmt.Fprintln(r.Stdout, "canceled")
		return 0
	}
	if final.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", final.Err)
		return 1
	}
	return 0
}

// mountEngines runs engine instances back to back, following advances.
func (r Runner) mountEngines(ctx context.Context, pipe *pipeline.Pipeline, slot *engineSlot, id exam.Identity, logger *slog.Logger) (session.Result, error) {
	for {
		engine, err := pipe.Engine(id)
		if err != nil {
			return session.Result{}, err
		}

		slot.set(engine)
		result := engine.Run(ctx)
		slot.set(nil)
		logSessionResult(logger, id, result)

		if result.Outcome != session.OutcomeAdvanced {
			if result.Outcome == session.OutcomeCanceled {
				result.Err = nil
			}
			return result, nil
		}
		fmt.Fprintf(r.Stdout, "advancing to room %s\n", result.NextRoom)
		id = id.WithRoom(result.NextRoom)
	}
}

// engineSlot routes control commands to whichever engine is mounted.
type engineSlot struct {
	mu     sync.Mutex
	engine *session.Controller
}

func (s *engineSlot) set(engine *session.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

func (s *engineSlot) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	if engine == nil {
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "idle"}
		case ipc.CommandStop:
			return ipc.Response{OK: true, State: "idle", Message: "no recording in progress"}
		default:
			return ipc.Response{OK: false, State: "idle", Error: "engine is between rooms"}
		}
	}
	return engine.Handle(ctx, req)
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func logSessionResult(logger *slog.Logger, id exam.Identity, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"room", id.Room,
		"participant", id.ParticipantID,
		"state", result.State,
		"outcome", result.Outcome,
		"next_room", result.NextRoom,
		"reason", result.Reason,
		"question", result.Question.Index,
		"answered", result.Answered,
		"samples_captured", result.SamplesCaptured,
		"attempts", result.Attempts,
		"transcription_length", len(result.Transcription),
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}
