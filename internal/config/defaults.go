package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"
	decoder := "ffmpeg -hide_banner -loglevel error -i pipe:0"

	return Config{
		Server: ServerConfig{
			BaseURL:    "http://127.0.0.1:8080",
			Flow:       "exam",
			HealthPath: "/healthz",
			TimeoutMS:  10000,
		},
		Session: SessionConfig{
			PollIntervalMS:   3000,
			CountdownSeconds: 3,
			AnswerLimitMS:    60000,
			RetryIntervalMS:  3000,
			FeedbackDelayMS:  4000,
		},
		Audio: AudioConfig{
			Input:      "default",
			Fallback:   "default",
			SampleRate: 16000,
			Channels:   1,
		},
		Decoder: DecoderConfig{
			Cmd:        CommandConfig{Raw: decoder, Argv: mustParseArgv(decoder)},
			SampleRate: 24000,
			Channels:   1,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "viva-indicator",
			SoundEnable:    true,
			ErrorTimeoutMS: 4000,
		},
		Transcript: TranscriptConfig{CapitalizeSentences: true},
		Output:     OutputConfig{Clipboard: false},
		Clipboard:  CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Debug:      DebugConfig{},
	}
}
