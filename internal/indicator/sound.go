package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/wav"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueAlert
	cueTick
)

const cueSampleRate = 16000

// cuePlayer plays one canonical container to completion.
type cuePlayer interface {
	Play(ctx context.Context, container []byte) error
}

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float32
}

var cueTones = map[cueKind][]toneSpec{
	cueStart: {
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	},
	cueStop: {
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
	},
	cueComplete: {
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	},
	cueAlert: {
		{frequencyHz: 520, duration: 90 * time.Millisecond, volume: 0.2},
		{frequencyHz: 520, duration: 90 * time.Millisecond, volume: 0.2},
		{frequencyHz: 390, duration: 140 * time.Millisecond, volume: 0.2},
	},
	cueTick: {
		{frequencyHz: 1320, duration: 35 * time.Millisecond, volume: 0.12},
	},
}

// emitCue plays the configured override file when it decodes, otherwise the
// synthesized tones for kind.
func emitCue(ctx context.Context, player cuePlayer, kind cueKind, cfg config.IndicatorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path := cuePath(kind, cfg); path != "" {
		container, err := os.ReadFile(path)
		if err == nil {
			if err = player.Play(ctx, container); err == nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	container, err := cueContainer(kind)
	if err != nil || container == nil {
		return err
	}
	if err := player.Play(ctx, container); err != nil {
		return fmt.Errorf("play cue: %w", err)
	}
	return nil
}

// cuePath returns the configured override file. Alert and tick cues are
// always synthesized.
func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	var raw string
	switch kind {
	case cueStart:
		raw = cfg.SoundStartFile
	case cueStop:
		raw = cfg.SoundStopFile
	case cueComplete:
		raw = cfg.SoundCompleteFile
	default:
		return ""
	}
	return config.ExpandPath(raw)
}

// cueContainer renders kind as a mono WAV container, nil for unknown kinds.
func cueContainer(kind cueKind) ([]byte, error) {
	samples := synthesizeCue(cueTones[kind])
	if len(samples) == 0 {
		return nil, nil
	}
	return wav.Encode(samples, cueSampleRate, 1)
}

func synthesizeCue(parts []toneSpec) []float32 {
	if len(parts) == 0 {
		return nil
	}
	gap := make([]float32, samplesForDuration(22*time.Millisecond))

	var pcm []float32
	for i, part := range parts {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, synthesizeTone(part)...)
	}
	return pcm
}

// synthesizeTone renders a sine with a short linear attack and release so
// cues do not click.
func synthesizeTone(spec toneSpec) []float32 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := min(max(n/10, 1), cueSampleRate/200)

	pcm := make([]float32, n)
	for i := range pcm {
		envelope := min(1, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		t := float64(i) / cueSampleRate
		pcm[i] = spec.volume * float32(envelope*math.Sin(2*math.Pi*spec.frequencyHz*t))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
