// Package config resolves, parses, validates, and defaults viva configuration.
package config

// Config is the fully materialized runtime configuration used by viva.
type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	Audio      AudioConfig
	Decoder    DecoderConfig
	Indicator  IndicatorConfig
	Transcript TranscriptConfig
	Output     OutputConfig
	Clipboard  CommandConfig
	Spool      SpoolConfig
	Metrics    MetricsConfig
	Debug      DebugConfig
}

// ServerConfig locates the exam server and the route set spoken to it.
type ServerConfig struct {
	BaseURL    string
	Flow       string
	HealthPath string
	GRPCHealth string
	TimeoutMS  int
	Routes     RoutesConfig
}

// RoutesConfig holds per-route template overrides; empty fields keep the
// flow preset.
type RoutesConfig struct {
	Status    string
	Prompt    string
	Playing   string
	Recording string
	Upload    string
}

// SessionConfig tunes engine timing.
type SessionConfig struct {
	PollIntervalMS   int
	CountdownSeconds int
	AnswerLimitMS    int
	RetryIntervalMS  int
	FeedbackDelayMS  int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input      string
	Fallback   string
	SampleRate int
	Channels   int
}

// DecoderConfig describes the external command used for compressed prompts.
type DecoderConfig struct {
	Cmd        CommandConfig
	SampleRate int
	Channels   int
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	Backend           string
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	ErrorTimeoutMS    int
}

// TranscriptConfig controls transcription formatting before it is shown.
type TranscriptConfig struct {
	CapitalizeSentences bool
}

// OutputConfig controls where delivered transcriptions go besides stdout.
type OutputConfig struct {
	Clipboard bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// SpoolConfig controls where finalized answers are persisted until delivered.
type SpoolConfig struct {
	Dir string
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Listen string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
	Verbose         bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
