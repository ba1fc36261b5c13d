package wav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Decoder turns transport-encoded compressed audio into normalized samples.
type Decoder interface {
	Decode(ctx context.Context, compressed []byte) ([]float32, Format, error)
}

// CommandDecoder pipes compressed audio through an external decoder that
// writes raw f32le to stdout (ffmpeg by default).
type CommandDecoder struct {
	Argv       []string
	SampleRate int
	Channels   int
}

// Decode runs the decoder command and returns its interleaved float output.
func (d CommandDecoder) Decode(ctx context.Context, compressed []byte) ([]float32, Format, error) {
	if len(d.Argv) == 0 {
		return nil, Format{}, errors.New("decoder command is empty")
	}
	f := Format{SampleRate: d.SampleRate, BitsPerSample: 16, Channels: d.Channels}
	if err := f.validate(); err != nil {
		return nil, Format{}, err
	}

	args := append([]string(nil), d.Argv[1:]...)
	args = append(args,
		"-f", "f32le",
		"-ac", strconv.Itoa(d.Channels),
		"-ar", strconv.Itoa(d.SampleRate),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Argv[0], args...)
	cmd.Stdin = bytes.NewReader(compressed)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return nil, Format{}, fmt.Errorf("decode audio: %w", err)
		}
		return nil, Format{}, fmt.Errorf("decode audio: %w (%s)", err, detail)
	}

	samples := Float32LE(stdout.Bytes())
	if len(samples) == 0 {
		return nil, Format{}, errors.New("decode audio: decoder produced no samples")
	}
	return samples, f, nil
}

// DecodeToContainer decodes compressed audio and encodes it as a 16-bit container.
func DecodeToContainer(ctx context.Context, d Decoder, compressed []byte) ([]byte, error) {
	samples, f, err := d.Decode(ctx, compressed)
	if err != nil {
		return nil, err
	}
	if rem := len(samples) % f.Channels; rem != 0 {
		samples = samples[:len(samples)-rem]
	}
	return Encode(samples, f.SampleRate, f.Channels)
}
