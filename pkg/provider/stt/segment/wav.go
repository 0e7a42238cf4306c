package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE format tag for integer PCM.
const wavFormatPCM = 1

// EncodeWAV wraps 16-bit little-endian PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	n := len(pcm) / bytesPerSample
	data := make([]int, n)
	for i := range n {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	var w memFile
	enc := wav.NewEncoder(&w, sampleRate, 16, channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("segment: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("segment: finish wav: %w", err)
	}
	return w.buf, nil
}

// memFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to patch
// the header sizes.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("segment: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("segment: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
