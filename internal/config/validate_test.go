package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty base url", mutate: func(c *Config) { c.Server.BaseURL = "" }, wantErr: "server.base_url"},
		{name: "relative base url", mutate: func(c *Config) { c.Server.BaseURL = "exams.local" }, wantErr: "absolute http(s)"},
		{name: "bad health path", mutate: func(c *Config) { c.Server.HealthPath = "healthz" }, wantErr: "must start"},
		{name: "zero timeout", mutate: func(c *Config) { c.Server.TimeoutMS = 0 }, wantErr: "server.timeout_ms"},
		{name: "grpc health without port", mutate: func(c *Config) { c.Server.GRPCHealth = "exams.local" }, wantErr: "server.grpc_health"},
		{name: "unknown flow", mutate: func(c *Config) { c.Server.Flow = "lecture" }, wantErr: "server.flow"},
		{name: "route without participant", mutate: func(c *Config) { c.Server.Routes.Status = "/api/{room}/status" }, wantErr: "routes"},
		{name: "upload without question", mutate: func(c *Config) { c.Server.Routes.Upload = "/api/{room}/{participant}" }, wantErr: "{question}"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Session.PollIntervalMS = 0 }, wantErr: "session.poll_interval_ms"},
		{name: "negative countdown", mutate: func(c *Config) { c.Session.CountdownSeconds = -1 }, wantErr: "session.countdown_seconds"},
		{name: "zero answer limit", mutate: func(c *Config) { c.Session.AnswerLimitMS = 0 }, wantErr: "session.answer_limit_ms"},
		{name: "zero retry interval", mutate: func(c *Config) { c.Session.RetryIntervalMS = 0 }, wantErr: "session.retry_interval_ms"},
		{name: "negative feedback delay", mutate: func(c *Config) { c.Session.FeedbackDelayMS = -1 }, wantErr: "session.feedback_delay_ms"},
		{name: "zero sample rate", mutate: func(c *Config) { c.Audio.SampleRate = 0 }, wantErr: "audio.sample_rate"},
		{name: "surround capture", mutate: func(c *Config) { c.Audio.Channels = 6 }, wantErr: "audio.channels"},
		{name: "empty decoder", mutate: func(c *Config) { c.Decoder.Cmd = CommandConfig{} }, wantErr: "decoder.cmd"},
		{name: "decoder channels", mutate: func(c *Config) { c.Decoder.Channels = 0 }, wantErr: "decoder.channels"},
		{name: "unknown backend", mutate: func(c *Config) { c.Indicator.Backend = "tray" }, wantErr: "indicator.backend"},
		{name: "desktop without app name", mutate: func(c *Config) {
			c.Indicator.Backend = "desktop"
			c.Indicator.DesktopAppName = " "
		}, wantErr: "desktop_app_name"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
		{name: "clipboard enabled without argv", mutate: func(c *Config) {
			c.Output.Clipboard = true
			c.Clipboard.Argv = nil
		}, wantErr: "clipboard_cmd"},
		{name: "metrics without port", mutate: func(c *Config) { c.Metrics.Listen = "localhost" }, wantErr: "metrics.listen"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestResolveRoutesAppliesOverridesToPreset(t *testing.T) {
	server := Default().Server
	server.Flow = "assignment"
	server.Routes.Prompt = "/custom/{room}/{participant}/audio"

	routes, err := ResolveRoutes(server)
	require.NoError(t, err)
	require.Equal(t, "/custom/{room}/{participant}/audio", routes.Prompt)
	require.Equal(t, "/api/assignments/{room}/students/{participant}/status", routes.Status)
}
