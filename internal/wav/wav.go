// Package wav builds and parses the canonical RIFF/WAVE answer container.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the fixed size of the canonical header.
const HeaderSize = 44

const formatPCM = 1

var (
	ErrInvalidHeader     = errors.New("invalid wav header")
	ErrUnsupportedFormat = errors.New("unsupported wav format")
)

// Format describes interleaved linear PCM.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// BlockAlign is the size of one interleaved frame in bytes.
func (f Format) BlockAlign() int {
	return f.Channels * (f.BitsPerSample / 8)
}

// ByteRate is the number of bytes per second of audio.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

func (f Format) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	}
	if f.Channels <= 0 || f.Channels > math.MaxUint16 {
		return fmt.Errorf("%w: channels %d", ErrUnsupportedFormat, f.Channels)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return fmt.Errorf("%w: bits per sample %d", ErrUnsupportedFormat, f.BitsPerSample)
	}
	return nil
}

// Header returns the 44-byte RIFF/WAVE header for dataLength bytes of PCM.
func Header(sampleRate, bitsPerSample, channels int, dataLength uint32) []byte {
	f := Format{SampleRate: sampleRate, BitsPerSample: bitsPerSample, Channels: channels}

	header := make([]byte, HeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataLength)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitsPerSample))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataLength)
	return header
}

// ParseHeader reads the canonical header at the start of container.
func ParseHeader(container []byte) (Format, uint32, error) {
	if len(container) < HeaderSize {
		return Format{}, 0, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(container))
	}
	if !bytes.Equal(container[0:4], []byte("RIFF")) ||
		!bytes.Equal(container[8:12], []byte("WAVE")) ||
		!bytes.Equal(container[12:16], []byte("fmt ")) ||
		!bytes.Equal(container[36:40], []byte("data")) {
		return Format{}, 0, fmt.Errorf("%w: missing chunk markers", ErrInvalidHeader)
	}
	if tag := binary.LittleEndian.Uint16(container[20:22]); tag != formatPCM {
		return Format{}, 0, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, tag)
	}

	f := Format{
		Channels:      int(binary.LittleEndian.Uint16(container[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(container[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(container[34:36])),
	}
	if err := f.validate(); err != nil {
		return Format{}, 0, err
	}
	return f, binary.LittleEndian.Uint32(container[40:44]), nil
}

// Wrap prepends the canonical header to raw interleaved PCM.
func Wrap(pcm []byte, f Format) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if len(pcm)%f.BlockAlign() != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte frames", ErrUnsupportedFormat, len(pcm), f.BlockAlign())
	}

	out := make([]byte, 0, HeaderSize+len(pcm))
	out = append(out, Header(f.SampleRate, f.BitsPerSample, f.Channels, uint32(len(pcm)))...)
	return append(out, pcm...), nil
}

// Encode converts interleaved samples in [-1, 1] to a 16-bit container.
func Encode(samples []float32, sampleRate, channels int) ([]byte, error) {
	f := Format{SampleRate: sampleRate, BitsPerSample: 16, Channels: channels}
	if err := f.validate(); err != nil {
		return nil, err
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples across %d channels", ErrUnsupportedFormat, len(samples), channels)
	}

	dataLength := len(samples) * 2
	out := make([]byte, HeaderSize+dataLength)
	copy(out, Header(sampleRate, 16, channels, uint32(dataLength)))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[HeaderSize+2*i:], uint16(ToInt16(s)))
	}
	return out, nil
}

// ToInt16 scales a normalized sample symmetrically: negative values by
// 0x8000 and non-negative values by 0x7FFF. Out-of-range input is clamped.
func ToInt16(s float32) int16 {
	if s != s {
		return 0
	}
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(math.Round(float64(s) * 0x8000))
	}
	return int16(math.Round(float64(s) * 0x7FFF))
}

// Decode splits a container into its format and 16-bit samples.
func Decode(container []byte) (Format, []int16, error) {
	f, dataLength, err := ParseHeader(container)
	if err != nil {
		return Format{}, nil, err
	}
	if f.BitsPerSample != 16 {
		return Format{}, nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, f.BitsPerSample)
	}

	data := container[HeaderSize:]
	if int(dataLength) < len(data) {
		data = data[:dataLength]
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return f, samples, nil
}

// Float32LE reinterprets little-endian IEEE-754 bytes as samples. A trailing
// partial sample is dropped.
func Float32LE(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out
}
