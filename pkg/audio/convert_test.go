package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func samples16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestDownmixMono(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{"stereo", []int16{100, 200, -100, -200}, 2, []int16{150, -150}},
		{"stereo at full scale", []int16{32767, 32767, -32768, -32768}, 2, []int16{32767, -32768}},
		{"three channels", []int16{30, 60, 90}, 3, []int16{60}},
		{"partial frame ignored", []int16{10, 20, 30}, 2, []int16{15}},
		{"mono untouched", []int16{1, 2, 3}, 1, []int16{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := samples16(audio.DownmixMono(pcm16(tt.in...), tt.channels))
			if !slices.Equal(got, tt.want) {
				t.Errorf("DownmixMono = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		src, dst int
		wantLen  int
	}{
		{"same rate", []int16{1, 2, 3}, 16000, 16000, 3},
		{"48k to 16k", []int16{100, 200, 300, 400, 500, 600}, 48000, 16000, 2},
		{"8k to 16k", []int16{1000, 2000}, 8000, 16000, 4},
		{"zero source rate", []int16{1, 2}, 0, 16000, 2},
		{"too short to keep", []int16{5}, 48000, 16000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := samples16(audio.ResampleMono16(pcm16(tt.in...), tt.src, tt.dst))
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d (%v)", len(got), tt.wantLen, got)
			}
		})
	}
}

func TestResampleMono16_Interpolates(t *testing.T) {
	t.Parallel()

	got := samples16(audio.ResampleMono16(pcm16(1000, 2000), 8000, 16000))
	want := []int16{1000, 1500, 2000, 2000}
	if !slices.Equal(got, want) {
		t.Errorf("ResampleMono16 = %v, want %v", got, want)
	}
}

func TestFormatConverter(t *testing.T) {
	t.Parallel()

	target := audio.Format{SampleRate: 16000, Channels: 1}
	tests := []struct {
		name          string
		frame         audio.AudioFrame
		wantSamples   int
		wantUnchanged bool
	}{
		{
			name:          "already speech format",
			frame:         audio.AudioFrame{Data: pcm16(1, 2, 3, 4), SampleRate: 16000, Channels: 1},
			wantSamples:   4,
			wantUnchanged: true,
		},
		{
			name:        "browser stereo 48k",
			frame:       audio.AudioFrame{Data: pcm16(make([]int16, 960*2)...), SampleRate: 48000, Channels: 2},
			wantSamples: 320,
		},
		{
			name:        "mono 8k",
			frame:       audio.AudioFrame{Data: pcm16(make([]int16, 160)...), SampleRate: 8000, Channels: 1},
			wantSamples: 320,
		},
		{
			name:        "odd byte count dropped",
			frame:       audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1},
			wantSamples: 0,
		},
		{
			name:        "half a stereo frame dropped",
			frame:       audio.AudioFrame{Data: pcm16(1, 2, 3), SampleRate: 48000, Channels: 2},
			wantSamples: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conv := &audio.FormatConverter{Target: target}
			tt.frame.Timestamp = 40 * time.Millisecond
			got := conv.Convert(tt.frame)
			if n := len(got.Data) / 2; n != tt.wantSamples {
				t.Fatalf("samples = %d, want %d", n, tt.wantSamples)
			}
			if got.SampleRate != 16000 || got.Channels != 1 {
				t.Errorf("format = %d Hz / %d ch, want 16000 / 1", got.SampleRate, got.Channels)
			}
			if got.Timestamp != tt.frame.Timestamp {
				t.Errorf("timestamp = %s, want %s", got.Timestamp, tt.frame.Timestamp)
			}
			if tt.wantUnchanged && &got.Data[0] != &tt.frame.Data[0] {
				t.Error("matching frame was copied")
			}
		})
	}
}
