package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	"github.com/rbright/viva/internal/wav"
)

// Player plays canonical containers on the default Pulse sink.
type Player struct {
	// MediaName labels the stream in the sound server.
	MediaName string
}

// Play blocks until container has played out or ctx is canceled. On
// cancellation the stream is stopped and ctx.Err is returned.
func (p Player) Play(ctx context.Context, container []byte) error {
	format, samples, err := wav.Decode(container)
	if err != nil {
		return err
	}
	if format.Channels > 2 {
		return fmt.Errorf("%w: %d channels", wav.ErrUnsupportedFormat, format.Channels)
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	var canceled atomic.Bool
	reader := samplesReader(samples, &canceled)

	layout := pulse.PlaybackMono
	if format.Channels == 2 {
		layout = pulse.PlaybackStereo
	}
	mediaName := p.MediaName
	if mediaName == "" {
		mediaName = "viva prompt"
	}

	stream, err := client.NewPlayback(
		reader,
		layout,
		pulse.PlaybackSampleRate(format.SampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(mediaName),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse playback stream: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			stream.Close()
			client.Close()
		})
	}

	drained := make(chan error, 1)
	go func() {
		stream.Start()
		stream.Drain()
		drained <- stream.Error()
		release()
	}()

	select {
	case err := <-drained:
		if err != nil {
			return fmt.Errorf("play prompt stream: %w", err)
		}
		return nil
	case <-ctx.Done():
		canceled.Store(true)
		stream.Stop()
		return ctx.Err()
	}
}

// samplesReader feeds samples to Pulse and ends early once canceled is set.
func samplesReader(samples []int16, canceled *atomic.Bool) pulse.Int16Reader {
	cursor := 0
	return pulse.Int16Reader(func(buf []int16) (int, error) {
		if canceled.Load() || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})
}
