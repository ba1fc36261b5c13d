package indicator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/wav"
)

type recordingPlayer struct {
	mu     sync.Mutex
	played [][]byte
	fail   map[int]error
	notify chan struct{}
}

func (p *recordingPlayer) Play(_ context.Context, container []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, container)
	if p.notify != nil {
		p.notify <- struct{}{}
	}
	return p.fail[len(p.played)]
}

func (p *recordingPlayer) containers() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.played...)
}

func TestCueContainersDecode(t *testing.T) {
	for _, kind := range []cueKind{cueStart, cueStop, cueComplete, cueAlert, cueTick} {
		container, err := cueContainer(kind)
		require.NoError(t, err)

		format, samples, err := wav.Decode(container)
		require.NoError(t, err)
		require.Equal(t, cueSampleRate, format.SampleRate)
		require.Equal(t, 1, format.Channels)
		require.NotEmpty(t, samples)
	}

	container, err := cueContainer(cueKind(99))
	require.NoError(t, err)
	require.Nil(t, container)
}

func TestCuePathUsesOverridesForStateCues(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.Default().Indicator
	cfg.SoundStartFile = "~/cues/start.wav"
	cfg.SoundStopFile = "/abs/stop.wav"

	require.Equal(t, home+"/cues/start.wav", cuePath(cueStart, cfg))
	require.Equal(t, "/abs/stop.wav", cuePath(cueStop, cfg))
	require.Empty(t, cuePath(cueComplete, cfg))
	require.Empty(t, cuePath(cueAlert, cfg))
	require.Empty(t, cuePath(cueTick, cfg))
}

func TestEmitCuePlaysOverrideFile(t *testing.T) {
	override, err := wav.Encode([]float32{0.1, -0.1}, 8000, 1)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "start.wav")
	require.NoError(t, os.WriteFile(path, override, 0o600))

	cfg := config.Default().Indicator
	cfg.SoundStartFile = path
	player := &recordingPlayer{}

	require.NoError(t, emitCue(context.Background(), player, cueStart, cfg))
	require.Equal(t, [][]byte{override}, player.containers())
}

func TestEmitCueFallsBackToSynthesizedTone(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundStopFile = filepath.Join(t.TempDir(), "missing.wav")
	player := &recordingPlayer{}

	require.NoError(t, emitCue(context.Background(), player, cueStop, cfg))
	synth, err := cueContainer(cueStop)
	require.NoError(t, err)
	require.Equal(t, [][]byte{synth}, player.containers())

	override, err := wav.Encode([]float32{0.1}, 8000, 1)
	require.NoError(t, err)
	cfg.SoundStopFile = filepath.Join(t.TempDir(), "stop.wav")
	require.NoError(t, os.WriteFile(cfg.SoundStopFile, override, 0o600))
	player = &recordingPlayer{fail: map[int]error{1: errors.New("unsupported")}}

	require.NoError(t, emitCue(context.Background(), player, cueStop, cfg))
	require.Len(t, player.containers(), 2)
}

func TestEmitCueSurfacesPlaybackFailure(t *testing.T) {
	player := &recordingPlayer{fail: map[int]error{1: errors.New("no sink")}}

	err := emitCue(context.Background(), player, cueAlert, config.Default().Indicator)
	require.ErrorContains(t, err, "play cue: no sink")
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := emitCue(ctx, &recordingPlayer{}, cueStart, config.Default().Indicator)
	require.ErrorIs(t, err, context.Canceled)
}

func TestShowCountdownPlaysTick(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = true
	player := &recordingPlayer{notify: make(chan struct{}, 1)}
	n := NewNotifier(cfg, nil)
	n.player = player

	n.ShowCountdown(context.Background(), 3)

	select {
	case <-player.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("tick cue was not played")
	}
	tick, err := cueContainer(cueTick)
	require.NoError(t, err)
	require.Equal(t, [][]byte{tick}, player.containers())
}

func TestSynthesizeToneDuration(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	require.Len(t, got, samplesForDuration(100*time.Millisecond))
	require.Zero(t, got[0])
	for _, s := range got {
		require.LessOrEqual(t, s, float32(0.2))
		require.GreaterOrEqual(t, s, float32(-0.2))
	}
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSynthesizeCueInsertsGaps(t *testing.T) {
	parts := cueTones[cueStart]
	want := samplesForDuration(parts[0].duration) + samplesForDuration(22*time.Millisecond) + samplesForDuration(parts[1].duration)
	require.Len(t, synthesizeCue(parts), want)
	require.Nil(t, synthesizeCue(nil))
}
