package present_test

import (
	"testing"

	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/present/mock"
)

func TestMulti_FansOut(t *testing.T) {
	t.Parallel()

	a, b := &mock.Presenter{}, &mock.Presenter{}
	m := present.Multi{a, present.Nop{}, b}

	m.ShowWelcome()
	m.ShowStep("Breathe")
	m.UpdateProgress(1, 4)
	m.PlayFeedback(present.Timeout, "still there?")
	m.UpdateStatus(true, "Listening...")
	m.ShowCue("Hold")
	m.ShowComplete()

	for i, p := range []*mock.Presenter{a, b} {
		if p.Welcomes != 1 || p.Completes != 1 {
			t.Errorf("presenter %d: welcomes=%d completes=%d, want 1 and 1", i, p.Welcomes, p.Completes)
		}
		if len(p.Steps) != 1 || p.Steps[0] != "Breathe" {
			t.Errorf("presenter %d: steps=%v", i, p.Steps)
		}
		if got := p.FeedbackOf(present.Timeout); len(got) != 1 || got[0] != "still there?" {
			t.Errorf("presenter %d: timeout feedback=%v", i, got)
		}
		if st, ok := p.LastStatus(); !ok || !st.Listening {
			t.Errorf("presenter %d: status=%+v", i, st)
		}
		if len(p.Cues) != 1 || len(p.Progress) != 1 || p.Progress[0] != (mock.Progress{Current: 1, Total: 4}) {
			t.Errorf("presenter %d: cues=%v progress=%v", i, p.Cues, p.Progress)
		}
	}
}

func TestFeedbackKind_String(t *testing.T) {
	t.Parallel()

	tests := map[present.FeedbackKind]string{
		present.Success:    "success",
		present.Error:      "error",
		present.Timeout:    "timeout",
		present.Suggestion: "suggestion",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(k), got, want)
		}
	}
}
