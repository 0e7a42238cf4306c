package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

func TestPushSource(t *testing.T) {
	t.Parallel()
	s := audio.NewPushSource()

	if s.Push(audio.AudioFrame{Data: []byte{1, 2}}) {
		t.Error("Push accepted a frame without an open capture")
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := s.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !s.Push(audio.AudioFrame{Data: []byte{1, 2}, SampleRate: 16000, Channels: 1}) {
		t.Fatal("Push rejected a frame")
	}
	f := <-frames
	if len(f.Data) != 2 || f.SampleRate != 16000 {
		t.Errorf("frame = %+v", f)
	}

	cancel()
	select {
	case _, ok := <-frames:
		if ok {
			t.Error("unexpected frame after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestPushSource_Close(t *testing.T) {
	t.Parallel()
	s := audio.NewPushSource()
	frames, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-frames; ok {
		t.Error("channel open after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.Open(context.Background()); !errors.Is(err, audio.ErrSourceClosed) {
		t.Errorf("Open after Close: err = %v", err)
	}
}

func TestPushSource_ReopenReplaces(t *testing.T) {
	t.Parallel()
	s := audio.NewPushSource()
	first, _ := s.Open(context.Background())
	second, _ := s.Open(context.Background())
	if _, ok := <-first; ok {
		t.Error("first capture still open")
	}
	if !s.Push(audio.AudioFrame{Data: []byte{0, 0}}) {
		t.Fatal("Push rejected")
	}
	if _, ok := <-second; !ok {
		t.Error("second capture closed")
	}
}
