package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rbright/viva/internal/wav"
)

const (
	bytesPerSample = 4 // float32
	chunkMillis    = 20
)

// Capture streams interleaved float32 chunks from one selected Pulse source.
type Capture struct {
	device     Device
	sampleRate int
	channels   int
	chunkBytes int

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []float32
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

func newCapture(device Device, sampleRate int, channels int) *Capture {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels != 2 {
		channels = 1
	}
	frame := channels * bytesPerSample
	return &Capture{
		device:     device,
		sampleRate: sampleRate,
		channels:   channels,
		chunkBytes: sampleRate * chunkMillis / 1000 * frame,
		chunks:     make(chan []float32, 256),
		stopCh:     make(chan struct{}),
	}
}

// StartCapture creates and starts a float32 record stream on selected.
func StartCapture(ctx context.Context, selected Device, sampleRate int, channels int) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected, sampleRate, channels)
	capture.client = client

	layout := pulse.RecordMono
	if capture.channels == 2 {
		layout = pulse.RecordStereo
	}

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatFloat32LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		layout,
		pulse.RecordSampleRate(capture.sampleRate),
		pulse.RecordBufferFragmentSize(uint32(capture.chunkBytes)),
		pulse.RecordMediaName("viva answer"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks returns interleaved samples in fixed-duration slices.
func (c *Capture) Chunks() <-chan []float32 {
	return c.chunks
}

func (c *Capture) SampleRate() int {
	return c.sampleRate
}

func (c *Capture) Channels() int {
	return c.channels
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Stop halts the stream, flushes whole residual frames, and closes Chunks
// exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	frame := c.channels * bytesPerSample
	pending := c.pending[:len(c.pending)-len(c.pending)%frame]
	c.pending = nil
	c.mu.Unlock()

	if len(pending) > 0 {
		select {
		case c.chunks <- wav.Float32LE(pending):
		default:
		}
	}

	close(c.chunks)
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM receives raw Pulse frames and emits chunkBytes-sized sample slices.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as c.stopped so Stop's Wait cannot race it.
	c.inflight.Add(1)

	c.pending = append(c.pending, buffer...)
	chunks := make([][]float32, 0, len(c.pending)/c.chunkBytes)
	for len(c.pending) >= c.chunkBytes {
		chunks = append(chunks, wav.Float32LE(c.pending[:c.chunkBytes]))
		c.pending = c.pending[c.chunkBytes:]
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))

	for _, chunk := range chunks {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.chunks <- chunk:
		}
	}

	return len(buffer), nil
}
