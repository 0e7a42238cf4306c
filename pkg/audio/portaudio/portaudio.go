// Package portaudio captures microphone audio with PortAudio and exposes it as
// an [audio.Source].
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

// DefaultFrameDuration is the length of one captured frame.
const DefaultFrameDuration = 20 * time.Millisecond

// ErrDeviceNotFound is returned when no input device matches the configured
// name.
var ErrDeviceNotFound = errors.New("portaudio: input device not found")

var errBusy = errors.New("portaudio: capture already open")

var _ audio.Source = (*Source)(nil)

// PortAudio keeps global state; Initialize and Terminate are reference
// counted across sources.
var (
	initMu   sync.Mutex
	initRefs int
)

func acquire() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	initRefs++
	return nil
}

func release() {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		return
	}
	initRefs--
	if initRefs == 0 {
		_ = portaudio.Terminate()
	}
}

// Device describes an input device.
type Device struct {
	Name       string
	HostAPI    string
	Channels   int
	SampleRate float64
	Default    bool
}

// Devices lists the available input devices.
func Devices() ([]Device, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	defer release()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for _, d := range infos {
		if d.MaxInputChannels <= 0 {
			continue
		}
		dev := Device{
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			Default:    def != nil && d.Name == def.Name,
		}
		if d.HostApi != nil {
			dev.HostAPI = d.HostApi.Name
		}
		out = append(out, dev)
	}
	return out, nil
}

// Option configures a Source.
type Option func(*Source)

// WithDevice selects the input device whose name contains name
// (case-insensitive). Empty uses the system default.
func WithDevice(name string) Option {
	return func(s *Source) { s.device = name }
}

// WithFrameDuration sets the length of each captured frame.
func WithFrameDuration(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.frame = d
		}
	}
}

// Source captures mono 16-bit audio from a PortAudio input device.
type Source struct {
	sampleRate int
	device     string
	frame      time.Duration

	mu     sync.Mutex
	stream *portaudio.Stream
	wg     sync.WaitGroup
	closed bool
}

// New returns a Source capturing at sampleRate Hz. The device is opened on
// Open.
func New(sampleRate int, opts ...Option) *Source {
	s := &Source{sampleRate: sampleRate, frame: DefaultFrameDuration}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open implements [audio.Source].
func (s *Source) Open(ctx context.Context) (<-chan audio.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, audio.ErrSourceClosed
	}
	if s.stream != nil {
		return nil, errBusy
	}

	if err := acquire(); err != nil {
		return nil, err
	}
	stream, buf, err := s.openStream()
	if err != nil {
		release()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		release()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}
	s.stream = stream

	out := make(chan audio.AudioFrame, 32)
	stopped := make(chan struct{})
	s.wg.Add(2)
	go s.capture(ctx, stream, buf, out, stopped)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			// Aborting unblocks the pending Read.
			_ = stream.Abort()
		case <-stopped:
		}
	}()
	return out, nil
}

func (s *Source) openStream() (*portaudio.Stream, []int16, error) {
	dev, err := s.inputDevice()
	if err != nil {
		return nil, nil, err
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(s.sampleRate)
	params.FramesPerBuffer = int(time.Duration(s.sampleRate) * s.frame / time.Second)

	buf := make([]int16, params.FramesPerBuffer)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, nil, fmt.Errorf("portaudio: open %q: %w", dev.Name, err)
	}
	return stream, buf, nil
}

func (s *Source) inputDevice() (*portaudio.DeviceInfo, error) {
	if s.device == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("portaudio: default input device: %w", err)
		}
		return dev, nil
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	names := make([]string, len(devs))
	inputs := make([]bool, len(devs))
	for i, d := range devs {
		names[i] = d.Name
		inputs[i] = d.MaxInputChannels > 0
	}
	i := matchDevice(names, inputs, s.device)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, s.device)
	}
	return devs[i], nil
}

// matchDevice returns the index of the first input device whose name equals
// want, or failing that contains it, ignoring case. It returns -1 if none
// matches.
func matchDevice(names []string, inputs []bool, want string) int {
	want = strings.ToLower(want)
	partial := -1
	for i, n := range names {
		if !inputs[i] {
			continue
		}
		lower := strings.ToLower(n)
		if lower == want {
			return i
		}
		if partial < 0 && strings.Contains(lower, want) {
			partial = i
		}
	}
	return partial
}

func (s *Source) capture(ctx context.Context, stream *portaudio.Stream, buf []int16, out chan<- audio.AudioFrame, stopped chan<- struct{}) {
	defer s.wg.Done()
	defer close(out)
	defer close(stopped)
	defer func() {
		_ = stream.Close()
		release()
		s.mu.Lock()
		s.stream = nil
		s.mu.Unlock()
	}()

	var elapsed time.Duration
	for {
		if err := stream.Read(); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, portaudio.InputOverflowed) {
				slog.Warn("portaudio: capture stopped", "error", err)
				return
			}
		}
		frame := audio.AudioFrame{
			Data:       encodePCM(buf),
			SampleRate: s.sampleRate,
			Channels:   1,
			Timestamp:  elapsed,
		}
		elapsed += s.frame
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		default:
			slog.Debug("portaudio: consumer slow, dropping frame")
		}
	}
}

// Close implements [audio.Source]. An open capture is aborted.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Abort()
	}
	s.wg.Wait()
	return nil
}

// encodePCM copies samples into a new little-endian byte slice.
func encodePCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
