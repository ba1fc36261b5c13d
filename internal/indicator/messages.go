package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	prompt        string
	countdown     string
	recording     string
	recordingLeft string
	uploading     string
	feedback      string
	transcription string
	errorText     string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			prompt:        "Question %d: listen…",
			countdown:     "Recording starts in %d…",
			recording:     "Recording…",
			recordingLeft: "Recording… %s left",
			uploading:     "Saving your answer…",
			feedback:      "Answer saved.",
			transcription: "Heard: %s",
			errorText:     "Something went wrong",
		}
	}
}
