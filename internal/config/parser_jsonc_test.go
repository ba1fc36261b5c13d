package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestJSONCCommandAcceptsStringOrArray(t *testing.T) {
	var cmd jsoncCommand
	require.NoError(t, cmd.UnmarshalJSON([]byte(`["ffmpeg","-i","pipe:0"]`)))
	require.Equal(t, []string{"ffmpeg", "-i", "pipe:0"}, []string(cmd))

	require.NoError(t, cmd.UnmarshalJSON([]byte(`"ffmpeg -loglevel 'error' -i pipe:0"`)))
	require.Equal(t, []string{"ffmpeg", "-loglevel", "error", "-i", "pipe:0"}, []string(cmd))

	err := cmd.UnmarshalJSON([]byte(`123`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected command string or argv array")
}

func TestParseJSONCRejectsInvalidCommandArgv(t *testing.T) {
	_, _, err := parseJSONC(`{"clipboard_cmd":"unterminated ' quote"}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid clipboard_cmd")

	_, _, err = parseJSONC(`{"decoder":{"cmd":"ffmpeg \"oops"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated quote")
}

func TestParseJSONCAppliesEverySection(t *testing.T) {
	cfg, warnings, err := parseJSONC(`{
  // exam server
  "server": {
    "base_url": " https://exams.example.edu ",
    "flow": "assignment",
    "health_path": "/ready",
    "grpc_health": "exams.example.edu:443",
    "timeout_ms": 5000,
  },
  "routes": {"upload": "/v2/{room}/{participant}/answer/{question}"},
  "session": {
    "poll_interval_ms": 1500,
    "countdown_seconds": 5,
    "answer_limit_ms": 90000,
    "retry_interval_ms": 2000,
    "feedback_delay_ms": 0,
  },
  "audio": {"input": "USB Mic", "sample_rate": 48000, "channels": 2},
  "decoder": {"cmd": ["ffmpeg", "-i", "pipe:0"], "sample_rate": 22050},
  "indicator": {"backend": " desktop ", "desktop_app_name": "  viva-exam  ", "error_timeout_ms": 2500},
  "transcript": {"capitalize_sentences": false},
  "output": {"clipboard": true},
  "spool": {"dir": "/tmp/viva-spool"},
  "metrics": {"listen": "127.0.0.1:9464"},
  "debug": {"audio_dump": true, "verbose": true},
}`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "https://exams.example.edu", cfg.Server.BaseURL)
	require.Equal(t, "assignment", cfg.Server.Flow)
	require.Equal(t, "/ready", cfg.Server.HealthPath)
	require.Equal(t, "exams.example.edu:443", cfg.Server.GRPCHealth)
	require.Equal(t, 5000, cfg.Server.TimeoutMS)
	require.Equal(t, "/v2/{room}/{participant}/answer/{question}", cfg.Server.Routes.Upload)
	require.Equal(t, SessionConfig{
		PollIntervalMS:   1500,
		CountdownSeconds: 5,
		AnswerLimitMS:    90000,
		RetryIntervalMS:  2000,
		FeedbackDelayMS:  0,
	}, cfg.Session)
	require.Equal(t, AudioConfig{Input: "USB Mic", Fallback: "default", SampleRate: 48000, Channels: 2}, cfg.Audio)
	require.Equal(t, []string{"ffmpeg", "-i", "pipe:0"}, cfg.Decoder.Cmd.Argv)
	require.Equal(t, 22050, cfg.Decoder.SampleRate)
	require.Equal(t, "desktop", cfg.Indicator.Backend)
	require.Equal(t, "viva-exam", cfg.Indicator.DesktopAppName)
	require.Equal(t, 2500, cfg.Indicator.ErrorTimeoutMS)
	require.False(t, cfg.Transcript.CapitalizeSentences)
	require.True(t, cfg.Output.Clipboard)
	require.Equal(t, "/tmp/viva-spool", cfg.Spool.Dir)
	require.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
	require.True(t, cfg.Debug.EnableAudioDump)
	require.True(t, cfg.Debug.Verbose)
}

func TestParseJSONCRejectsUnknownFields(t *testing.T) {
	_, _, err := parseJSONC(`{"riva":{"grpc":"127.0.0.1:50051"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"output":{"clipboard":false}}{"output":{"clipboard":true}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "session": {"poll_interval_ms": "fast"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCPlainHTTPToRemoteHostWarns(t *testing.T) {
	_, warnings, err := parseJSONC(`{"server":{"base_url":"http://exams.example.edu"}}`, Default())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "unencrypted")
}
