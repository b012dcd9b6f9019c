package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestAnalyzer(cfg Config) *Analyzer {
	a := New(cfg)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	a.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return a
}

func TestRecordTurn_ForgetfulnessFlag(t *testing.T) {
	a := newTestAnalyzer(Config{})
	a.RecordTurn("What did I tell you about my dog?", "I don't remember what you said")

	flags := a.Snapshot().Memory.ForgottenFlags
	if len(flags) != 1 {
		t.Fatalf("expected 1 forgotten flag, got %d", len(flags))
	}
	if flags[0].Text != "I don't remember what you said" || flags[0].Role != RoleAssistant {
		t.Errorf("unexpected flag: %+v", flags[0])
	}

	a.RecordTurn("My dog is called Rex", "Rex is a lovely name for a dog.")
	if got := len(a.Snapshot().Memory.ForgottenFlags); got != 1 {
		t.Errorf("expected flags to stay at 1, got %d", got)
	}
}

func TestRecordTurn_DriftBounds(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		assistant string
		want      float64
	}{
		{"identical topics", "photosynthesis plants sunlight", "Plants use sunlight for photosynthesis.", 0},
		{"disjoint topics", "Tell me about volcanoes", "Here is a pasta recipe with tomatoes.", 100},
		{"half covered", "volcanoes glaciers", "Glaciers move slowly.", 50},
		{"no user topics", "ok?", "Volcanoes erupt.", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(Config{})
			a.RecordTurn(tt.user, tt.assistant)
			if got := a.Snapshot().Context.DriftScore; got != tt.want {
				t.Errorf("DriftScore = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRecordTurn_DriftOverUnrelatedTurns(t *testing.T) {
	users := []string{"volcanoes", "astronomy", "gardening", "chess", "cooking", "football", "painting", "economics", "chemistry", "poetry"}
	replies := []string{"submarines", "knitting", "algebra", "jazz", "glaciers", "origami", "taxes", "robots", "deserts", "violins"}

	a := newTestAnalyzer(Config{})
	prev := -1.0
	for i := range users {
		a.RecordTurn("Tell me about "+users[i], "Let me describe "+replies[i]+" instead.")
		drift := a.Snapshot().Context.DriftScore
		if drift < prev {
			t.Errorf("turn %d: drift decreased from %f to %f", i, prev, drift)
		}
		prev = drift
	}
	if prev <= 50 {
		t.Errorf("expected drift above 50 after ten unrelated turns, got %f", prev)
	}
}

func TestRecordTurn_EmptyInputsAreNeutral(t *testing.T) {
	a := newTestAnalyzer(Config{})
	a.RecordTurn("", "")
	a.RecordTurn("   ", "\n")

	s := a.Snapshot()
	if s.Memory.Pressure != 0 || s.Context.DriftScore != 0 || s.Emotional.StressLevel != 0 {
		t.Errorf("expected zero scores, got %+v", s)
	}
	if s.Reasoning.Confidence != 100 || s.Attention.FocusScore != 100 {
		t.Errorf("expected full confidence and focus, got %f %f", s.Reasoning.Confidence, s.Attention.FocusScore)
	}
	if s.Emotional.Tone != ToneNeutral || s.Emotional.ToneShifted {
		t.Errorf("expected neutral tone, got %+v", s.Emotional)
	}
	if len(s.Attention.DistractionEvents) != 0 {
		t.Errorf("expected no distraction events, got %v", s.Attention.DistractionEvents)
	}
}

func TestRecordTurn_MemoryPressure(t *testing.T) {
	a := newTestAnalyzer(Config{SaturationTokens: 100})

	a.RecordTurn(strings.Repeat("a", 200), "")
	if got := a.Snapshot().Memory.Pressure; got != 50 {
		t.Errorf("Pressure = %f, want 50", got)
	}

	a.RecordTurn(strings.Repeat("b", 400), "")
	if got := a.Snapshot().Memory.Pressure; got != 100 {
		t.Errorf("Pressure = %f, want saturated 100", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestRecordTurn_RecentWindow(t *testing.T) {
	a := newTestAnalyzer(Config{WindowSize: 4})
	for _, q := range []string{"one", "two", "three"} {
		a.RecordTurn(q, "reply "+q)
	}

	var got []string
	for _, turn := range a.Snapshot().Memory.RecentWindow {
		got = append(got, string(turn.Role)+":"+turn.Text)
	}
	want := []string{"user:two", "assistant:reply two", "user:three", "assistant:reply three"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RecentWindow mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordTurn_Confidence(t *testing.T) {
	a := newTestAnalyzer(Config{})
	a.RecordTurn("Is this right?", "Maybe it is possibly right, I think, but probably not.")

	s := a.Snapshot()
	want := []string{"maybe", "possibly", "probably", "i think"}
	if diff := cmp.Diff(want, s.Reasoning.UncertaintyMarkers); diff != "" {
		t.Errorf("UncertaintyMarkers mismatch (-want +got):\n%s", diff)
	}
	if s.Reasoning.Confidence != 40 {
		t.Errorf("Confidence = %f, want 40", s.Reasoning.Confidence)
	}
	if s.Emotional.StressLevel != 33 {
		t.Errorf("StressLevel = %f, want 33", s.Emotional.StressLevel)
	}

	a.RecordTurn("And now?", "The answer is four.")
	if got := a.Snapshot().Reasoning.Confidence; got != 100 {
		t.Errorf("expected confidence to recover on a clean reply, got %f", got)
	}
}

func TestRecordTurn_StressFromCorrections(t *testing.T) {
	a := newTestAnalyzer(Config{})
	for i := 0; i < 3; i++ {
		a.RecordTurn("What is 2+2?", "Sorry, I was wrong. The answer is 4.")
	}

	s := a.Snapshot()
	if s.Reasoning.SelfCorrectionCount != 3 {
		t.Errorf("SelfCorrectionCount = %d, want 3", s.Reasoning.SelfCorrectionCount)
	}
	if s.Emotional.Tone != ToneApologetic {
		t.Errorf("Tone = %s, want apologetic", s.Emotional.Tone)
	}
	if s.Emotional.StressLevel != 66 {
		t.Errorf("StressLevel = %f, want 66", s.Emotional.StressLevel)
	}
}

func TestRecordTurn_HallucinationFlags(t *testing.T) {
	a := newTestAnalyzer(Config{})
	a.RecordTurn("Do people like tea?", "Studies show that 73% of people prefer tea.")

	flags := a.Snapshot().Reasoning.HallucinationFlags
	var got []string
	for _, f := range flags {
		got = append(got, f.Indicator+"="+f.MatchedText)
	}
	want := []string{"vague_study=Studies show", "unsourced_statistic=73% of people"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HallucinationFlags mismatch (-want +got):\n%s", diff)
	}
	for _, f := range flags {
		if f.Confidence <= 0 || f.Confidence > 1 {
			t.Errorf("flag confidence out of range: %+v", f)
		}
	}
}

func TestRecordTurn_LostReference(t *testing.T) {
	a := newTestAnalyzer(Config{})
	a.RecordTurn("Can you fix it?", "What do you mean? Could you clarify?")
	a.RecordTurn("The login bug", "Sure, the login bug is fixed.")

	if got := len(a.Snapshot().Context.LostReferences); got != 1 {
		t.Errorf("expected 1 lost reference, got %d", got)
	}
}

func TestRecordTurn_ToneShift(t *testing.T) {
	tests := []struct {
		name    string
		replies []string
		tone    Tone
		shifted bool
	}{
		{"confident to apologetic", []string{"Certainly, the capital is Paris.", "Sorry, my mistake."}, ToneApologetic, true},
		{"apologetic to neutral", []string{"Sorry, my mistake.", "The capital is Paris."}, ToneNeutral, true},
		{"neutral to apologetic", []string{"The capital is Paris.", "Sorry, my mistake."}, ToneApologetic, false},
		{"same tone", []string{"Sorry about that.", "Sorry again."}, ToneApologetic, false},
		{"defensive wins over apologetic", []string{"As I said, sorry, it is Paris."}, ToneDefensive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(Config{})
			for _, r := range tt.replies {
				a.RecordTurn("What is the capital of France?", r)
			}
			e := a.Snapshot().Emotional
			if e.Tone != tt.tone || e.ToneShifted != tt.shifted {
				t.Errorf("got tone %s shifted %v, want %s %v", e.Tone, e.ToneShifted, tt.tone, tt.shifted)
			}
		})
	}
}

func TestRecordTurn_Focus(t *testing.T) {
	a := newTestAnalyzer(Config{})
	a.RecordTurn("python decorators", "Python decorators!")
	s := a.Snapshot()
	if s.Attention.FocusScore != 100 {
		t.Errorf("FocusScore = %f, want 100", s.Attention.FocusScore)
	}
	if diff := cmp.Diff([]string{"decorators", "python"}, s.Attention.FocusKeywords); diff != "" {
		t.Errorf("FocusKeywords mismatch (-want +got):\n%s", diff)
	}

	a.RecordTurn("python decorators", "Tomatoes need sunshine.")
	s = a.Snapshot()
	if s.Attention.FocusScore != 0 {
		t.Errorf("FocusScore = %f, want 0", s.Attention.FocusScore)
	}
	if len(s.Attention.DistractionEvents) != 1 {
		t.Errorf("expected 1 distraction event, got %d", len(s.Attention.DistractionEvents))
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	a := newTestAnalyzer(Config{})
	a.RecordTurn("photosynthesis plants", "Plants perform photosynthesis. Maybe.")

	before := a.Snapshot()
	mutated := a.Snapshot()
	mutated.Memory.RecentWindow[0].Text = "mutated"
	mutated.Context.ActiveTopics[0] = "mutated"
	mutated.Reasoning.UncertaintyMarkers[0] = "mutated"
	mutated.Attention.FocusKeywords[0] = "mutated"

	if diff := cmp.Diff(before, a.Snapshot()); diff != "" {
		t.Errorf("internal state changed through a snapshot (-before +after):\n%s", diff)
	}
}

func TestBaseline(t *testing.T) {
	a := newTestAnalyzer(Config{})
	if _, ok := a.Baseline(); ok {
		t.Fatal("expected no baseline before the first turn")
	}

	a.RecordTurn("first", "first reply")
	a.RecordTurn("second", "second reply")

	b, ok := a.Baseline()
	if !ok {
		t.Fatal("expected a baseline")
	}
	if b.TurnCount != 1 {
		t.Errorf("baseline TurnCount = %d, want 1", b.TurnCount)
	}
	if a.TurnCount() != 2 {
		t.Errorf("TurnCount = %d, want 2", a.TurnCount())
	}
}

func TestRecordTurn_MaxHistory(t *testing.T) {
	a := newTestAnalyzer(Config{MaxHistory: 3})
	for i := 0; i < 5; i++ {
		a.RecordTurn("I forgot", "I don't remember what you said")
	}

	s := a.Snapshot()
	if a.TurnCount() != 5 || s.TurnCount != 5 {
		t.Errorf("TurnCount = %d/%d, want 5", a.TurnCount(), s.TurnCount)
	}
	if got := len(s.Memory.RecentWindow); got != 6 {
		t.Errorf("RecentWindow has %d turns, want 6", got)
	}
	if got := len(s.Memory.ForgottenFlags); got != 3 {
		t.Errorf("ForgottenFlags = %d, want 3 (bounded by retained history)", got)
	}
}

func TestScoresStayInRange(t *testing.T) {
	a := newTestAnalyzer(Config{SaturationTokens: 1})
	replies := []string{
		"Sorry!! As I said, maybe perhaps possibly probably, I think, I believe, not sure, unclear.",
		"Actually, I was wrong. Correction: studies show experts say it is well known.",
		"",
	}
	for _, r := range replies {
		a.RecordTurn(strings.Repeat("lengthy question ", 50), r)
		s := a.Snapshot()
		for name, v := range map[string]float64{
			"pressure":   s.Memory.Pressure,
			"drift":      s.Context.DriftScore,
			"confidence": s.Reasoning.Confidence,
			"focus":      s.Attention.FocusScore,
			"stress":     s.Emotional.StressLevel,
		} {
			if v < 0 || v > 100 {
				t.Errorf("%s out of range: %f", name, v)
			}
		}
	}
}
