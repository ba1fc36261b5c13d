package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Server     *jsoncServer     `json:"server"`
	Routes     *jsoncRoutes     `json:"routes"`
	Session    *jsoncSession    `json:"session"`
	Audio      *jsoncAudio      `json:"audio"`
	Decoder    *jsoncDecoder    `json:"decoder"`
	Indicator  *jsoncIndicator  `json:"indicator"`
	Transcript *jsoncTranscript `json:"transcript"`
	Output     *jsoncOutput     `json:"output"`
	Spool      *jsoncSpool      `json:"spool"`
	Metrics    *jsoncMetrics    `json:"metrics"`
	Debug      *jsoncDebug      `json:"debug"`

	ClipboardCmd *string `json:"clipboard_cmd"`
}

type jsoncServer struct {
	BaseURL    *string `json:"base_url"`
	Flow       *string `json:"flow"`
	HealthPath *string `json:"health_path"`
	GRPCHealth *string `json:"grpc_health"`
	TimeoutMS  *int    `json:"timeout_ms"`
}

type jsoncRoutes struct {
	Status    *string `json:"status"`
	Prompt    *string `json:"prompt"`
	Playing   *string `json:"playing"`
	Recording *string `json:"recording"`
	Upload    *string `json:"upload"`
}

type jsoncSession struct {
	PollIntervalMS   *int `json:"poll_interval_ms"`
	CountdownSeconds *int `json:"countdown_seconds"`
	AnswerLimitMS    *int `json:"answer_limit_ms"`
	RetryIntervalMS  *int `json:"retry_interval_ms"`
	FeedbackDelayMS  *int `json:"feedback_delay_ms"`
}

type jsoncAudio struct {
	Input      *string `json:"input"`
	Fallback   *string `json:"fallback"`
	SampleRate *int    `json:"sample_rate"`
	Channels   *int    `json:"channels"`
}

type jsoncDecoder struct {
	Cmd        *jsoncCommand `json:"cmd"`
	SampleRate *int          `json:"sample_rate"`
	Channels   *int          `json:"channels"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	Backend           *string `json:"backend"`
	DesktopAppName    *string `json:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
}

type jsoncTranscript struct {
	CapitalizeSentences *bool `json:"capitalize_sentences"`
}

type jsoncOutput struct {
	Clipboard *bool `json:"clipboard"`
}

type jsoncSpool struct {
	Dir *string `json:"dir"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
	Verbose   *bool `json:"verbose"`
}

// jsoncCommand accepts either a shell-like command string or an argv array.
type jsoncCommand []string

func (c *jsoncCommand) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*c = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		argv, err := parseArgv(single)
		if err != nil {
			return err
		}
		*c = argv
		return nil
	}

	return fmt.Errorf("expected command string or argv array")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if s := payload.Server; s != nil {
		setString(&cfg.Server.BaseURL, s.BaseURL)
		setString(&cfg.Server.Flow, s.Flow)
		setString(&cfg.Server.HealthPath, s.HealthPath)
		setString(&cfg.Server.GRPCHealth, s.GRPCHealth)
		setInt(&cfg.Server.TimeoutMS, s.TimeoutMS)
	}

	if r := payload.Routes; r != nil {
		setString(&cfg.Server.Routes.Status, r.Status)
		setString(&cfg.Server.Routes.Prompt, r.Prompt)
		setString(&cfg.Server.Routes.Playing, r.Playing)
		setString(&cfg.Server.Routes.Recording, r.Recording)
		setString(&cfg.Server.Routes.Upload, r.Upload)
	}

	if s := payload.Session; s != nil {
		setInt(&cfg.Session.PollIntervalMS, s.PollIntervalMS)
		setInt(&cfg.Session.CountdownSeconds, s.CountdownSeconds)
		setInt(&cfg.Session.AnswerLimitMS, s.AnswerLimitMS)
		setInt(&cfg.Session.RetryIntervalMS, s.RetryIntervalMS)
		setInt(&cfg.Session.FeedbackDelayMS, s.FeedbackDelayMS)
	}

	if a := payload.Audio; a != nil {
		if a.Input != nil {
			cfg.Audio.Input = *a.Input
		}
		if a.Fallback != nil {
			cfg.Audio.Fallback = *a.Fallback
		}
		setInt(&cfg.Audio.SampleRate, a.SampleRate)
		setInt(&cfg.Audio.Channels, a.Channels)
	}

	if d := payload.Decoder; d != nil {
		if d.Cmd != nil {
			argv := []string(*d.Cmd)
			cfg.Decoder.Cmd = CommandConfig{Raw: strings.Join(argv, " "), Argv: argv}
		}
		setInt(&cfg.Decoder.SampleRate, d.SampleRate)
		setInt(&cfg.Decoder.Channels, d.Channels)
	}

	if i := payload.Indicator; i != nil {
		if i.Enable != nil {
			cfg.Indicator.Enable = *i.Enable
		}
		setString(&cfg.Indicator.Backend, i.Backend)
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		if i.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *i.SoundEnable
		}
		setString(&cfg.Indicator.SoundStartFile, i.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, i.SoundStopFile)
		setString(&cfg.Indicator.SoundCompleteFile, i.SoundCompleteFile)
		setInt(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if payload.Transcript != nil && payload.Transcript.CapitalizeSentences != nil {
		cfg.Transcript.CapitalizeSentences = *payload.Transcript.CapitalizeSentences
	}

	if payload.Output != nil && payload.Output.Clipboard != nil {
		cfg.Output.Clipboard = *payload.Output.Clipboard
	}

	if payload.ClipboardCmd != nil {
		raw := *payload.ClipboardCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: raw, Argv: argv}
	}

	if payload.Spool != nil {
		setString(&cfg.Spool.Dir, payload.Spool.Dir)
	}

	if payload.Metrics != nil {
		setString(&cfg.Metrics.Listen, payload.Metrics.Listen)
	}

	if payload.Debug != nil {
		if payload.Debug.AudioDump != nil {
			cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
		}
		if payload.Debug.Verbose != nil {
			cfg.Debug.Verbose = *payload.Debug.Verbose
		}
	}

	return warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
