package coordinator

import "testing"

func TestLogRingEvictsOldest(t *testing.T) {
	r := NewLogRing(3)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		r.Add(1, m, nil)
	}
	got := r.Entries()
	if len(got) != 3 || got[0].Message != "c" || got[2].Message != "e" {
		t.Fatalf("entries = %+v, want c..e", got)
	}
	if got[0].Seq != 3 || got[2].Seq != 5 {
		t.Errorf("seqs = %d..%d, want 3..5", got[0].Seq, got[2].Seq)
	}
	if got[0].Time.IsZero() {
		t.Error("entry has no timestamp")
	}
}

func TestLogRingSince(t *testing.T) {
	r := NewLogRing(10)
	for _, m := range []string{"a", "b", "c"} {
		r.Add(0, m, nil)
	}
	got := r.Since(1)
	if len(got) != 2 || got[0].Message != "b" {
		t.Fatalf("Since(1) = %+v, want b, c", got)
	}
	if got := r.Since(3); len(got) != 0 {
		t.Errorf("Since(3) = %+v, want empty", got)
	}
}

func TestLogRingResetKeepsSequence(t *testing.T) {
	r := NewLogRing(10)
	r.Add(1, "a", nil)
	r.Reset()
	if n := len(r.Entries()); n != 0 {
		t.Fatalf("entries after Reset = %d", n)
	}
	if e := r.Add(2, "b", nil); e.Seq != 2 {
		t.Errorf("seq after Reset = %d, want 2", e.Seq)
	}
}

func TestLogRingResize(t *testing.T) {
	r := NewLogRing(5)
	for _, m := range []string{"a", "b", "c", "d"} {
		r.Add(0, m, nil)
	}
	r.Resize(2)
	got := r.Entries()
	if len(got) != 2 || got[0].Message != "c" {
		t.Fatalf("entries = %+v, want c, d", got)
	}
	r.Resize(0)
	r.Add(0, "e", nil)
	if n := len(r.Entries()); n != 2 {
		t.Errorf("Resize(0) changed capacity; entries = %d", n)
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseFileSelected, true},
		{PhaseIdle, PhasePreprocessing, false},
		{PhaseIdle, PhaseIdle, false},
		{PhaseFileSelected, PhasePreprocessing, true},
		{PhasePreprocessing, PhaseAwaitingWorker, true},
		{PhasePreprocessing, PhaseComplete, false},
		{PhaseAwaitingWorker, PhaseAwaitingWorker, true},
		{PhaseAwaitingWorker, PhaseComplete, true},
		{PhaseAwaitingWorker, PhaseError, true},
		{PhaseComplete, PhaseAwaitingWorker, false},
		{PhaseComplete, PhasePreprocessing, true},
		{PhaseError, PhaseFileSelected, true},
		{PhaseError, PhaseIdle, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := isValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("isValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestAcceptedMedia(t *testing.T) {
	for mt, want := range map[string]bool{
		"audio/mpeg":               true,
		"video/mp4":                true,
		"Audio/WAV":                true,
		"text/plain":               false,
		"application/octet-stream": false,
		"":                         false,
	} {
		if got := acceptedMedia(mt); got != want {
			t.Errorf("acceptedMedia(%q) = %v, want %v", mt, got, want)
		}
	}
}
