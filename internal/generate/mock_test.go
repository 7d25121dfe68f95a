package generate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dgnsrekt/lingoplay/internal/audio"
	"github.com/dgnsrekt/lingoplay/internal/script"
)

func TestMockGenerator_Generate(t *testing.T) {
	m := NewMockGenerator()

	for _, level := range script.Levels {
		s, err := m.Generate(context.Background(), level)
		if err != nil {
			t.Fatalf("Generate(%s) failed: %v", level, err)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("canned %s script is invalid: %v", level, err)
		}
		if s.Difficulty != level {
			t.Errorf("difficulty = %q, want %q", s.Difficulty, level)
		}
	}

	if m.ScriptCalls() != len(script.Levels) {
		t.Errorf("ScriptCalls = %d", m.ScriptCalls())
	}
}

func TestMockGenerator_ScriptsAreCopies(t *testing.T) {
	m := NewMockGenerator()

	a, _ := m.Generate(context.Background(), script.Beginner)
	a.Lines[0].Text = "changed"

	b, _ := m.Generate(context.Background(), script.Beginner)
	if b.Lines[0].Text == "changed" {
		t.Error("mutating a generated script leaked into the canned set")
	}
}

func TestMockGenerator_SynthesizeDecodes(t *testing.T) {
	m := NewMockGenerator()
	lines := []script.Line{
		{ID: 1, Speaker: "A", Text: "Hola"},
		{ID: 2, Speaker: "B", Text: "¿Qué tal?"},
	}

	payload, err := m.Synthesize(context.Background(), lines)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	pcm, err := audio.Decode(payload, audio.DefaultSampleRate)
	if err != nil {
		t.Fatalf("mock payload does not decode: %v", err)
	}
	if pcm.SampleRate != audio.DefaultSampleRate || pcm.Channels != 1 {
		t.Errorf("format = %d Hz x %d, want %d Hz mono", pcm.SampleRate, pcm.Channels, audio.DefaultSampleRate)
	}

	want := (MockToneDuration("Hola") + mockLineGap + MockToneDuration("¿Qué tal?")).Seconds()
	if math.Abs(pcm.Duration()-want) > 0.01 {
		t.Errorf("duration = %.3f, want %.3f", pcm.Duration(), want)
	}

	if _, err := m.Synthesize(context.Background(), nil); !errors.Is(err, ErrGeneration) {
		t.Errorf("empty lines should fail with ErrGeneration, got %v", err)
	}
}

func TestMockGenerator_Failure(t *testing.T) {
	m := NewMockGenerator()
	testErr := errors.New("test error")
	m.SetFailure(testErr)

	if _, err := m.Generate(context.Background(), script.Beginner); err != testErr {
		t.Errorf("expected injected error, got %v", err)
	}
	if _, err := m.Define(context.Background(), "pan", "Compro pan."); err != testErr {
		t.Errorf("expected injected error, got %v", err)
	}

	m.ClearFailure()
	d, err := m.Define(context.Background(), "pan", "Compro pan.")
	if err != nil {
		t.Fatalf("unexpected error after clearing failure: %v", err)
	}
	if d.Word != "pan" || d.Primary == "" {
		t.Errorf("unexpected definition: %+v", d)
	}
	if m.DefineCalls() != 2 {
		t.Errorf("DefineCalls = %d, want 2", m.DefineCalls())
	}
}

func TestMockGenerator_DelayHonorsContext(t *testing.T) {
	m := NewMockGenerator()
	m.SetDelay(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := m.Synthesize(ctx, []script.Line{{ID: 1, Speaker: "A", Text: "x"}}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestMockToneDuration(t *testing.T) {
	if got := MockToneDuration(""); got != 500*time.Millisecond {
		t.Errorf("empty text = %v", got)
	}
	if got := MockToneDuration("ñññ"); got != 680*time.Millisecond {
		t.Errorf("three runes = %v, want 680ms", got)
	}
	if got := MockToneDuration(string(make([]rune, 1000))); got != 6*time.Second {
		t.Errorf("long text should cap at 6s, got %v", got)
	}
}
