package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/rbright/viva/internal/delivery"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	base := strings.TrimSpace(cfg.Server.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("server.base_url must not be empty")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("server.base_url must be an absolute http(s) URL")
	}
	if parsed.Scheme == "http" && !isLoopbackHost(parsed.Hostname()) {
		warnings = append(warnings, Warning{Message: "server.base_url uses plain http to a non-local host; answers are sent unencrypted"})
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.Server.HealthPath), "/") {
		return nil, fmt.Errorf("server.health_path must start with '/'")
	}
	if cfg.Server.TimeoutMS <= 0 {
		return nil, fmt.Errorf("server.timeout_ms must be > 0")
	}
	if grpcHealth := strings.TrimSpace(cfg.Server.GRPCHealth); grpcHealth != "" {
		if _, _, err := net.SplitHostPort(grpcHealth); err != nil {
			return nil, fmt.Errorf("server.grpc_health must be host:port: %w", err)
		}
	}

	if _, err := ResolveRoutes(cfg.Server); err != nil {
		return nil, err
	}

	if cfg.Session.PollIntervalMS <= 0 {
		return nil, fmt.Errorf("session.poll_interval_ms must be > 0")
	}
	if cfg.Session.CountdownSeconds < 0 {
		return nil, fmt.Errorf("session.countdown_seconds must be >= 0")
	}
	if cfg.Session.AnswerLimitMS <= 0 {
		return nil, fmt.Errorf("session.answer_limit_ms must be > 0")
	}
	if cfg.Session.RetryIntervalMS <= 0 {
		return nil, fmt.Errorf("session.retry_interval_ms must be > 0")
	}
	if cfg.Session.FeedbackDelayMS < 0 {
		return nil, fmt.Errorf("session.feedback_delay_ms must be >= 0")
	}

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return nil, fmt.Errorf("audio.channels must be 1 or 2")
	}

	if len(cfg.Decoder.Cmd.Argv) == 0 {
		return nil, fmt.Errorf("decoder.cmd must not be empty")
	}
	if cfg.Decoder.SampleRate <= 0 {
		return nil, fmt.Errorf("decoder.sample_rate must be > 0")
	}
	if cfg.Decoder.Channels != 1 && cfg.Decoder.Channels != 2 {
		return nil, fmt.Errorf("decoder.channels must be 1 or 2")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.Output.Clipboard && len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty when output.clipboard=true")
	}

	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return nil, fmt.Errorf("metrics.listen must be host:port: %w", err)
		}
	}

	return warnings, nil
}

// ResolveRoutes merges route overrides onto the configured flow preset.
func ResolveRoutes(server ServerConfig) (delivery.Routes, error) {
	preset, err := delivery.PresetRoutes(strings.ToLower(strings.TrimSpace(server.Flow)))
	if err != nil {
		return delivery.Routes{}, fmt.Errorf("server.flow: %w", err)
	}
	routes := preset.Merge(delivery.Routes{
		Status:    server.Routes.Status,
		Prompt:    server.Routes.Prompt,
		Playing:   server.Routes.Playing,
		Recording: server.Routes.Recording,
		Upload:    server.Routes.Upload,
	})
	if err := routes.Validate(); err != nil {
		return delivery.Routes{}, fmt.Errorf("routes: %w", err)
	}
	return routes, nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
