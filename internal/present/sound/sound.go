// Package sound plays short audio cues for presenter feedback.
package sound

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/present"
)

// Compile-time assertion that Presenter satisfies present.Presenter.
var _ present.Presenter = (*Presenter)(nil)

// SampleRate is the output rate. Cue files are resampled to it.
const SampleRate beep.SampleRate = 44100

// ErrUnsupportedFormat is returned for cue files that are not mp3, wav or ogg.
var ErrUnsupportedFormat = errors.New("sound: unsupported file format")

// Player plays a stream without blocking.
type Player interface {
	Play(s beep.Streamer)
}

// Speaker plays through the default audio output. The device is opened on
// first use.
type Speaker struct {
	once sync.Once
	err  error
}

// Play implements [Player].
func (s *Speaker) Play(st beep.Streamer) {
	s.once.Do(func() {
		s.err = speaker.Init(SampleRate, SampleRate.N(time.Second/10))
		if s.err != nil {
			slog.Warn("sound: cannot open audio output, cues disabled", "error", s.err)
		}
	})
	if s.err != nil {
		return
	}
	speaker.Play(st)
}

// Note is one tone of a synthesized cue.
type Note struct {
	Freq float64
	Dur  time.Duration
}

// defaultTones are the built-in cues per feedback kind.
var defaultTones = map[present.FeedbackKind][]Note{
	present.Success:    {{660, 90 * time.Millisecond}, {880, 140 * time.Millisecond}},
	present.Error:      {{330, 120 * time.Millisecond}, {0, 40 * time.Millisecond}, {262, 180 * time.Millisecond}},
	present.Timeout:    {{523, 250 * time.Millisecond}},
	present.Suggestion: {{587, 80 * time.Millisecond}, {0, 40 * time.Millisecond}, {587, 80 * time.Millisecond}},
}

// Option is a functional option for configuring a [Presenter].
type Option func(*Presenter)

// WithPlayer sets the output. Defaults to a [Speaker].
func WithPlayer(p Player) Option {
	return func(s *Presenter) { s.player = p }
}

// Presenter plays a cue for every feedback call and ignores the rest.
type Presenter struct {
	present.Nop

	player Player
	// buffers hold decoded cue files; kinds without one use a tone.
	buffers map[present.FeedbackKind]*beep.Buffer
	volume  float64
}

// New decodes the configured cue files and returns a Presenter.
func New(cfg config.SoundConfig, opts ...Option) (*Presenter, error) {
	p := &Presenter{
		buffers: make(map[present.FeedbackKind]*beep.Buffer),
		volume:  0.3,
	}
	for _, o := range opts {
		o(p)
	}
	if p.player == nil {
		p.player = &Speaker{}
	}
	for name, path := range cfg.Files {
		kind, ok := parseKind(name)
		if !ok {
			return nil, fmt.Errorf("sound: unknown feedback kind %q", name)
		}
		buf, err := Load(path)
		if err != nil {
			return nil, err
		}
		p.buffers[kind] = buf
	}
	return p, nil
}

// PlayFeedback implements [present.Presenter].
func (p *Presenter) PlayFeedback(kind present.FeedbackKind, _ string) {
	if buf, ok := p.buffers[kind]; ok {
		p.player.Play(buf.Streamer(0, buf.Len()))
		return
	}
	notes, ok := defaultTones[kind]
	if !ok {
		return
	}
	p.player.Play(Tones(notes, p.volume))
}

// Load decodes a cue file into memory, resampled to [SampleRate].
func Load(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sound: open %s: %w", path, err)
	}
	var (
		st     beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		st, format, err = mp3.Decode(f)
	case ".wav":
		st, format, err = wav.Decode(f)
	case ".ogg":
		st, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sound: decode %s: %w", path, err)
	}
	defer st.Close()

	out := format
	out.SampleRate = SampleRate
	buf := beep.NewBuffer(out)
	var src beep.Streamer = st
	if format.SampleRate != SampleRate {
		src = beep.Resample(4, format.SampleRate, SampleRate, st)
	}
	buf.Append(src)
	return buf, nil
}

// Tones synthesizes a sequence of sine tones. A zero frequency is a rest.
func Tones(notes []Note, volume float64) beep.Streamer {
	parts := make([]beep.Streamer, 0, len(notes))
	for _, n := range notes {
		samples := SampleRate.N(n.Dur)
		if n.Freq <= 0 {
			parts = append(parts, beep.Silence(samples))
			continue
		}
		parts = append(parts, beep.Take(samples, sine(n.Freq, volume, samples)))
	}
	return beep.Seq(parts...)
}

// sine returns an endless sine wave with a short linear fade at both ends of
// the first length samples, which avoids clicks.
func sine(freq, volume float64, length int) beep.Streamer {
	step := 2 * math.Pi * freq / float64(SampleRate)
	fade := min(length/8, SampleRate.N(10*time.Millisecond))
	i := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for k := range samples {
			gain := volume
			if fade > 0 {
				switch {
				case i < fade:
					gain *= float64(i) / float64(fade)
				case i >= length-fade:
					gain *= float64(max(length-i, 0)) / float64(fade)
				}
			}
			v := gain * math.Sin(step*float64(i))
			samples[k][0], samples[k][1] = v, v
			i++
		}
		return len(samples), true
	})
}

func parseKind(s string) (present.FeedbackKind, bool) {
	for _, k := range []present.FeedbackKind{present.Success, present.Error, present.Timeout, present.Suggestion} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}
