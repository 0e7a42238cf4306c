package audio

import "time"

// AudioFrame is a chunk of captured audio, the unit passed from a [Source] to
// the speech service.
type AudioFrame struct {
	// Data is 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz (16000 for speech recognition).
	SampleRate int

	// Channels: 1 for mono. Remote clients may send stereo, which is
	// down-mixed before recognition.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}
