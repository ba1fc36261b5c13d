// Package doctor runs readiness diagnostics for config, tools, audio, and the exam server.
package doctor

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/hypr"
	"github.com/rbright/viva/internal/spool"
	"github.com/rbright/viva/internal/version"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})
	checks = append(checks, checkRoutes(cfg.Config))
	checks = append(checks, checkServerReady(ctx, cfg.Config))
	if strings.TrimSpace(cfg.Config.Server.GRPCHealth) != "" {
		checks = append(checks, checkGRPCHealth(ctx, cfg.Config.Server.GRPCHealth))
	}

	checks = append(checks, checkCommand(cfg.Config.Decoder.Cmd.Argv, "decoder.cmd"))
	if cfg.Config.Output.Clipboard {
		checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	}
	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkIndicatorBackend(cfg.Config.Indicator))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkSpool(cfg.Config))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkIndicatorBackend(cfg config.IndicatorConfig) Check {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "desktop") {
		return checkBinary("busctl", "desktop notifications use busctl")
	}
	if msg, ok := hypr.Available(); !ok {
		return Check{Name: "indicator.hypr", Pass: false, Message: msg}
	}
	return checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland")
}

func checkRoutes(cfg config.Config) Check {
	routes, err := config.ResolveRoutes(cfg.Server)
	if err != nil {
		return Check{Name: "server.routes", Pass: false, Message: err.Error()}
	}
	return Check{Name: "server.routes", Pass: true, Message: fmt.Sprintf("flow %q polls %s", cfg.Server.Flow, routes.Status)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkSpool(cfg config.Config) Check {
	dir, err := config.ResolveSpoolDir(cfg)
	if err != nil {
		return Check{Name: "spool", Pass: false, Message: err.Error()}
	}
	s, err := spool.Open(dir)
	if err != nil {
		return Check{Name: "spool", Pass: false, Message: err.Error()}
	}
	pending, err := s.List()
	if err != nil {
		return Check{Name: "spool", Pass: false, Message: err.Error()}
	}
	return Check{Name: "spool", Pass: true, Message: fmt.Sprintf("%s (%d undelivered)", s.Dir(), len(pending))}
}

// checkServerReady probes the exam server HTTP health endpoint.
func checkServerReady(ctx context.Context, cfg config.Config) Check {
	base := strings.TrimSpace(cfg.Server.BaseURL)
	if base == "" {
		return Check{Name: "server.ready", Pass: false, Message: "server.base_url is empty"}
	}

	url := strings.TrimRight(base, "/") + cfg.Server.HealthPath
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: "server.ready", Pass: false, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: "server.ready", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "server.ready", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: "server.ready", Pass: true, Message: fmt.Sprintf("ready at %s", url)}
}

// checkGRPCHealth queries the standard grpc.health.v1 service for overall status.
func checkGRPCHealth(ctx context.Context, addr string) Check {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(transportCredentials(addr)))
	if err != nil {
		return Check{Name: "server.grpc_health", Pass: false, Message: fmt.Sprintf("dial %s: %v", addr, err)}
	}
	defer conn.Close()

	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return Check{Name: "server.grpc_health", Pass: false, Message: fmt.Sprintf("health check %s: %v", addr, err)}
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return Check{Name: "server.grpc_health", Pass: false, Message: fmt.Sprintf("%s reports %s", addr, resp.GetStatus())}
	}
	return Check{Name: "server.grpc_health", Pass: true, Message: fmt.Sprintf("serving at %s", addr)}
}

// transportCredentials uses plaintext for loopback targets and TLS elsewhere.
func transportCredentials(addr string) credentials.TransportCredentials {
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		if ip := net.ParseIP(host); (ip != nil && ip.IsLoopback()) || strings.EqualFold(host, "localhost") {
			return insecure.NewCredentials()
		}
	}
	return credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
}
