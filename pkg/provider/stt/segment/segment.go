// Package segment turns a continuous PCM stream into utterances for batch
// speech-to-text engines.
//
// Batch engines (whisper.cpp, OpenAI transcription, the Wit.ai speech
// endpoint) take a complete recording per request. A [Segmenter] buffers
// incoming 16-bit PCM, discards leading silence, and cuts an utterance once
// enough trailing silence follows speech or the buffer reaches its maximum
// length. [NewSession] wraps a [Transcriber] in an [stt.SessionHandle] built
// on that segmentation.
package segment

import (
	"encoding/binary"
	"math"
	"time"
)

const bytesPerSample = 2

// Defaults for [Config].
const (
	// DefaultRMSThreshold is the root-mean-square level (in 16-bit PCM
	// units) below which a chunk counts as silence. 300 of 32767 is close to
	// a quiet room.
	DefaultRMSThreshold = 300.0

	DefaultSilence     = 500 * time.Millisecond
	DefaultMaxDuration = 10 * time.Second
	DefaultSampleRate  = 16000
)

// Config controls utterance segmentation. Zero fields use the defaults.
type Config struct {
	SampleRate   int
	Channels     int
	RMSThreshold float64

	// Silence is the trailing silence that ends an utterance.
	Silence time.Duration

	// MaxDuration forces a cut during continuous speech.
	MaxDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.RMSThreshold <= 0 {
		c.RMSThreshold = DefaultRMSThreshold
	}
	if c.Silence <= 0 {
		c.Silence = DefaultSilence
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	return c
}

// Segmenter accumulates PCM and cuts utterances. It is not safe for
// concurrent use.
type Segmenter struct {
	cfg       Config
	maxBytes  int
	buf       []byte
	hadSpeech bool
	silence   time.Duration
}

// New returns a Segmenter for cfg.
func New(cfg Config) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		cfg:      cfg,
		maxBytes: int(cfg.MaxDuration.Seconds() * float64(cfg.SampleRate*cfg.Channels*bytesPerSample)),
	}
}

// Config returns the effective configuration.
func (s *Segmenter) Config() Config { return s.cfg }

// Push adds chunk and returns a completed utterance when chunk ended one.
func (s *Segmenter) Push(chunk []byte) ([]byte, bool) {
	if RMS(chunk) < s.cfg.RMSThreshold {
		if !s.hadSpeech {
			return nil, false
		}
		s.silence += Duration(len(chunk), s.cfg.SampleRate, s.cfg.Channels)
		s.buf = append(s.buf, chunk...)
		if s.silence >= s.cfg.Silence {
			return s.Flush()
		}
		return nil, false
	}
	s.hadSpeech = true
	s.silence = 0
	s.buf = append(s.buf, chunk...)
	if s.maxBytes > 0 && len(s.buf) >= s.maxBytes {
		return s.Flush()
	}
	return nil, false
}

// Flush returns the buffered utterance, if it contains speech, and resets.
func (s *Segmenter) Flush() ([]byte, bool) {
	pcm, ok := s.buf, s.hadSpeech && len(s.buf) > 0
	s.buf = nil
	s.hadSpeech = false
	s.silence = 0
	return pcm, ok
}

// RMS returns the root-mean-square level of 16-bit little-endian PCM, or 0
// for less than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Duration returns the play time of n bytes of 16-bit PCM.
func Duration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * bytesPerSample
	return time.Duration(n) * time.Second / time.Duration(bytesPerSec)
}

// Float32Mono converts 16-bit PCM to mono float32 samples in [-1, 1],
// averaging channels. A trailing partial frame is ignored.
func Float32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / (bytesPerSample * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * bytesPerSample
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:]))) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}
