package audio

import (
	"encoding/binary"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter brings captured frames into the format a recognizer
// expects. Frames with more channels than the target are down-mixed to mono
// before resampling, so recognizers only ever see the target rate.
//
// Create one per stream; it is not safe for concurrent use.
type FormatConverter struct {
	Target Format

	warnOnce    sync.Once
	corruptOnce sync.Once
}

// Convert returns frame in the target format. A frame already in the target
// format is returned as is. A frame whose data is not whole 16-bit samples
// for its channel count is dropped and comes back with nil Data.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	channels := max(frame.Channels, 1)
	if len(frame.Data)%(2*channels) != 0 {
		c.corruptOnce.Do(func() {
			slog.Warn("audio: misaligned pcm frame dropped",
				"bytes", len(frame.Data), "channels", frame.Channels)
		})
		return AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}
	if frame.SampleRate == c.Target.SampleRate && channels == max(c.Target.Channels, 1) {
		return frame
	}

	c.warnOnce.Do(func() {
		slog.Info("audio: converting capture format",
			"from_rate", frame.SampleRate, "from_channels", frame.Channels,
			"to_rate", c.Target.SampleRate, "to_channels", c.Target.Channels)
	})

	pcm := frame.Data
	if channels > 1 {
		pcm = DownmixMono(pcm, channels)
	}
	pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)
	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   1,
		Timestamp:  frame.Timestamp,
	}
}

// DownmixMono averages the interleaved channels of 16-bit PCM into one. A
// trailing partial frame is ignored.
func DownmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := channels * 2
	frames := len(pcm) / stride
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[i*stride+ch*2:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/int32(channels))))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate with
// linear interpolation. Non-positive or equal rates return pcm unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := len(pcm) / 2
	dst := int(int64(src) * int64(dstRate) / int64(srcRate))
	if dst == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	out := make([]byte, dst*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := sample(idx)
		s1 := s0
		if idx+1 < src {
			s1 = sample(idx + 1)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s0+(s1-s0)*frac)))
	}
	return out
}
