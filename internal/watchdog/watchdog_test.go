package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// copyText has ten distinct tokens; pasteText is a five-token subset, so a
// paste of pasteText after a copy of copyText has containment 1 but Jaccard
// similarity 0.5, below the re-paste discard threshold.
const (
	copyText  = "alpha beta gamma epsilon zeta theta iota kappa sigma omega"
	pasteText = "alpha beta gamma epsilon zeta"
)

func newTestSession(at time.Time) *Session {
	s := NewSession(nil)
	s.now = func() time.Time { return at }
	return s
}

func newActiveHandle(t *testing.T, s *Session, kind FieldKind) (*TextField, *Handle) {
	t.Helper()
	field := NewTextField("answer", kind)
	h, err := s.RegisterField(field)
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}
	if err := h.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return field, h
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestRegisterFieldCardinality(t *testing.T) {
	s := newTestSession(t0)
	a := NewTextField("a", KindSingleLineText)
	b := NewTextField("b", KindSingleLineText)

	if _, err := s.RegisterField(); !errors.Is(err, ErrSelectorCardinality) {
		t.Errorf("RegisterField() err = %v, want ErrSelectorCardinality", err)
	}
	if _, err := s.RegisterField(a, b); !errors.Is(err, ErrSelectorCardinality) {
		t.Errorf("RegisterField(a, b) err = %v, want ErrSelectorCardinality", err)
	}
	if _, err := s.RegisterFields(); !errors.Is(err, ErrSelectorCardinality) {
		t.Errorf("RegisterFields() err = %v, want ErrSelectorCardinality", err)
	}

	handles, err := s.RegisterFields(a, b)
	if err != nil {
		t.Fatalf("RegisterFields(a, b): %v", err)
	}
	if len(handles) != 2 {
		t.Errorf("handles = %d, want 2", len(handles))
	}
	if got := len(s.Handles()); got != 2 {
		t.Errorf("session handles = %d, want 2", got)
	}
}

func TestInitializeRequiresMonitoringSession(t *testing.T) {
	s := newTestSession(t0)

	// Events before Initialize are dropped without panicking.
	s.OnCopy(CopyEvent{At: t0, Text: copyText})
	s.OnVisibilityChange(VisibilityEvent{At: t0, Hidden: true})

	field := NewTextField("answer", KindMultiLineText)
	h, err := s.RegisterField(field)
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}
	if err := h.Initialize(context.Background(), nil); !errors.Is(err, ErrUninitializedSession) {
		t.Errorf("Initialize err = %v, want ErrUninitializedSession", err)
	}
}

func TestInitializeRejectsNonTextKinds(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)

	field := NewTextField("logo", KindOther)
	h, err := s.RegisterField(field)
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}
	if err := h.Initialize(context.Background(), nil); !errors.Is(err, ErrInvalidFieldType) {
		t.Errorf("Initialize err = %v, want ErrInvalidFieldType", err)
	}
}

func TestRestartBeforeInitialize(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)

	h, err := s.RegisterField(NewTextField("answer", KindMultiLineText))
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}
	if err := h.Restart(); !errors.Is(err, ErrHandleNotInitialized) {
		t.Errorf("Restart err = %v, want ErrHandleNotInitialized", err)
	}
}

func TestStopPreservesStateAndRestartRearms(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})
	if got := len(h.State().Contributions); got != 1 {
		t.Fatalf("contributions = %d, want 1", got)
	}

	h.Stop()
	h.Stop() // idempotent
	h.OnPaste(PasteEvent{At: t0.Add(2 * time.Minute), Text: pasteText})
	if got := len(h.State().Contributions); got != 1 {
		t.Errorf("paste while stopped recorded; contributions = %d", got)
	}

	if err := h.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	h.OnPaste(PasteEvent{At: t0.Add(3 * time.Minute), Text: pasteText})
	if got := len(h.State().Contributions); got != 2 {
		t.Errorf("contributions after restart = %d, want 2", got)
	}
}

func TestDestroyUnregisters(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	_, h := newActiveHandle(t, s, KindMultiLineText)

	h.Destroy()
	if got := len(s.Handles()); got != 0 {
		t.Errorf("handles after destroy = %d, want 0", got)
	}
	if err := h.Initialize(context.Background(), nil); !errors.Is(err, ErrHandleNotInitialized) {
		t.Errorf("Initialize after destroy err = %v, want ErrHandleNotInitialized", err)
	}
}

func TestLoaderRehydratesState(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)

	persisted := &HandleState{
		Factors: FactorValues{CopyRelatesToPaste: 0.4, UnmodifiedPastes: 0.8},
		Contributions: []Contribution{
			{Timestamp: t0.Add(-time.Hour), Content: pasteText, Score: 0.4},
		},
	}

	h, err := s.RegisterField(NewTextField("answer", KindMultiLineText))
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}
	loader := func(ctx context.Context) (*HandleState, error) { return persisted, nil }
	if err := h.Initialize(context.Background(), loader); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	st := h.State()
	if st.Factors != persisted.Factors {
		t.Errorf("factors = %+v, want %+v", st.Factors, persisted.Factors)
	}
	if len(st.Contributions) != 1 || st.Contributions[0].Content != pasteText {
		t.Errorf("contributions = %+v", st.Contributions)
	}
}

func TestLoaderFailureLeavesHandleInactive(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)

	field := NewTextField("answer", KindMultiLineText)
	h, err := s.RegisterField(field)
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}

	loader := func(ctx context.Context) (*HandleState, error) {
		return nil, errors.New("store unavailable")
	}
	if err := h.Initialize(context.Background(), loader); err == nil {
		t.Fatal("Initialize succeeded despite loader failure")
	}

	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})
	if got := len(h.State().Contributions); got != 0 {
		t.Errorf("inactive handle recorded a paste; contributions = %d", got)
	}
}

func TestSessionStopIgnoresEvents(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	s.Stop()
	s.Stop() // idempotent
	if s.Monitoring() {
		t.Error("session still monitoring after Stop")
	}

	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})
	if got := len(h.State().Contributions); got != 0 {
		t.Errorf("paste after session stop recorded; contributions = %d", got)
	}
}

func TestChangeUser(t *testing.T) {
	s := newTestSession(t0)
	if err := s.ChangeUser(context.Background(), "user-2"); !errors.Is(err, ErrUninitializedSession) {
		t.Errorf("ChangeUser before Initialize err = %v, want ErrUninitializedSession", err)
	}

	s.Initialize("user-1", nil, nil)

	loads := 0
	loader := func(ctx context.Context) (*HandleState, error) {
		loads++
		return nil, nil
	}

	field := NewTextField("answer", KindMultiLineText)
	h, err := s.RegisterField(field)
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}
	if err := h.Initialize(context.Background(), loader); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s.OnCopy(CopyEvent{At: t0, Text: copyText})
	if err := s.ChangeUser(context.Background(), "user-2"); err != nil {
		t.Fatalf("ChangeUser: %v", err)
	}
	if loads != 2 {
		t.Errorf("loader calls = %d, want 2 (initialize + user change)", loads)
	}
	if got := s.UserID(); got != "user-2" {
		t.Errorf("UserID = %q, want %q", got, "user-2")
	}

	// The event log was reset, so the pre-change copy no longer relates.
	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})
	st := h.State()
	if len(st.Contributions) != 1 {
		t.Fatalf("contributions = %d, want 1", len(st.Contributions))
	}
	if got := st.Contributions[0].Containment; got != 0 {
		t.Errorf("containment after user change = %v, want 0", got)
	}
}

func TestChangeUserLoaderFailureStopsHandle(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)

	calls := 0
	loader := func(ctx context.Context) (*HandleState, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("store unavailable")
		}
		return nil, nil
	}

	field := NewTextField("answer", KindMultiLineText)
	h, err := s.RegisterField(field)
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}
	if err := h.Initialize(context.Background(), loader); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := s.ChangeUser(context.Background(), "user-2"); err == nil {
		t.Fatal("ChangeUser succeeded despite loader failure")
	}

	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})
	if got := len(h.State().Contributions); got != 0 {
		t.Errorf("stopped handle recorded a paste; contributions = %d", got)
	}
}

func TestOnPasteFullPipeline(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	s.OnCopy(CopyEvent{At: t0, Text: copyText})
	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(2 * time.Minute), Text: pasteText})

	st := h.State()
	if len(st.Contributions) != 1 {
		t.Fatalf("contributions = %d, want 1", len(st.Contributions))
	}
	c := st.Contributions[0]

	approx(t, "Similarity", c.Similarity, 0.5)
	approx(t, "Containment", c.Containment, 1)
	// Two minutes into a five-minute window, linear decay gives 0.6 for
	// both the copy and the tab factor.
	approx(t, "CopyFactor", c.CopyFactor, 1-2.0/5.0)
	approx(t, "TabSwitchFactor", c.TabSwitchFactor, 1-2.0/5.0)
	wantPaste := 1 * (1 - 2.0/5.0) * (1 - 2.0/5.0)
	approx(t, "PasteScore", c.PasteScore, wantPaste)
	approx(t, "AIScore", c.AIScore, 0)
	approx(t, "Score", c.Score, wantPaste)

	f := st.Factors
	approx(t, "CopyRelatesToPaste", f.CopyRelatesToPaste, wantPaste)
	approx(t, "ContentContainsAISignatures", f.ContentContainsAISignatures, 0)
	approx(t, "UnmodifiedPastes", f.UnmodifiedPastes, 1)
	approx(t, "KeepsSwitchingTabs", f.KeepsSwitchingTabs, 0) // single focus interval

	a := h.LastAnalysis()
	w := DefaultConfig().Weights
	approx(t, "Confidence", a.Confidence, wantPaste*w.CopyRelatesToPaste+1*w.UnmodifiedPastes)
	approx(t, "Raw[copy]", a.Raw[ReasonCopyRelatesToPaste], wantPaste)
	approx(t, "Weighted[unmodified]", a.Weighted[ReasonUnmodifiedPastes], w.UnmodifiedPastes)
}

func TestOnPasteDecayFloorAndWindow(t *testing.T) {
	tests := []struct {
		name       string
		gap        time.Duration
		wantFactor float64
	}{
		{"near the window edge the floor holds", 294 * time.Second, 0.5}, // 4.9 min
		{"outside the window decays to zero", 6 * time.Minute, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t0)
			s.Initialize("user-1", nil, nil)
			field, h := newActiveHandle(t, s, KindMultiLineText)

			s.OnCopy(CopyEvent{At: t0, Text: copyText})
			field.SetValue(pasteText)
			h.OnPaste(PasteEvent{At: t0.Add(tt.gap), Text: pasteText})

			st := h.State()
			if len(st.Contributions) != 1 {
				t.Fatalf("contributions = %d, want 1", len(st.Contributions))
			}
			c := st.Contributions[0]
			approx(t, "CopyFactor", c.CopyFactor, tt.wantFactor)
			approx(t, "TabSwitchFactor", c.TabSwitchFactor, tt.wantFactor)
			approx(t, "PasteScore", c.PasteScore, tt.wantFactor*tt.wantFactor)
		})
	}
}

func TestOnPasteSizeThreshold(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	_, h := newActiveHandle(t, s, KindMultiLineText)

	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: ""})
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: "short text"})
	if got := len(h.State().Contributions); got != 0 {
		t.Errorf("undersized pastes recorded; contributions = %d", got)
	}
}

func TestOnPasteDiscardsRepasteOfLastCopy(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	s.OnCopy(CopyEvent{At: t0, Text: copyText})
	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})

	before := h.State()
	if len(before.Contributions) != 1 {
		t.Fatalf("contributions = %d, want 1", len(before.Contributions))
	}

	// A verbatim re-paste of the copied text scores similarity 1 and is
	// discarded; the aggregate factors must not move.
	h.OnPaste(PasteEvent{At: t0.Add(2 * time.Minute), Text: copyText})

	after := h.State()
	if len(after.Contributions) != 1 {
		t.Errorf("discarded paste appended a contribution; got %d", len(after.Contributions))
	}
	if !reflect.DeepEqual(before.Factors, after.Factors) {
		t.Errorf("factors changed across a discarded paste: %+v vs %+v", before.Factors, after.Factors)
	}
}

func TestOnPasteAISignatures(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	// No prior copy, so the paste score is zero; the AI factor must still
	// register on signature-heavy content.
	aiText := "As an AI — here is: 1. alpha 2. beta"
	field.SetValue(aiText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: aiText})

	st := h.State()
	if len(st.Contributions) != 1 {
		t.Fatalf("contributions = %d, want 1", len(st.Contributions))
	}
	c := st.Contributions[0]
	approx(t, "AIScore", c.AIScore, 1)
	approx(t, "PasteScore", c.PasteScore, 0)
	approx(t, "Score", c.Score, 0)

	f := st.Factors
	approx(t, "ContentContainsAISignatures", f.ContentContainsAISignatures, 1)
	approx(t, "CopyRelatesToPaste", f.CopyRelatesToPaste, 0)
	approx(t, "UnmodifiedPastes", f.UnmodifiedPastes, 1)
}

func TestTabSwitchPattern(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	s.OnCopy(CopyEvent{At: t0.Add(10 * time.Second), Text: copyText})
	s.OnVisibilityChange(VisibilityEvent{At: t0.Add(30 * time.Second), Hidden: true})
	s.OnVisibilityChange(VisibilityEvent{At: t0.Add(40 * time.Second), Hidden: false})

	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(60 * time.Second), Text: pasteText})

	st := h.State()
	if len(st.Contributions) != 1 {
		t.Fatalf("contributions = %d, want 1", len(st.Contributions))
	}
	c := st.Contributions[0]

	copyFactor := 1 - (50.0/60.0)/5
	tabFactor := 1 - (20.0/60.0)/5
	wantScore := copyFactor * tabFactor
	approx(t, "CopyFactor", c.CopyFactor, copyFactor)
	approx(t, "TabSwitchFactor", c.TabSwitchFactor, tabFactor)
	approx(t, "Score", c.Score, wantScore)

	// Two intervals exist and the paste lands in the window between the
	// first close and now, so the pattern factor picks it up.
	approx(t, "KeepsSwitchingTabs", st.Factors.KeepsSwitchingTabs, wantScore)
}

func TestTabSwitchPatternNeedsTwoIntervals(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	s.OnCopy(CopyEvent{At: t0, Text: copyText})
	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})

	if got := h.State().Factors.KeepsSwitchingTabs; got != 0 {
		t.Errorf("KeepsSwitchingTabs with a single interval = %v, want 0", got)
	}
}

func TestOnInputRecomputesAgainstEditedContent(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	pasted := "alpha beta gamma. zeta theta iota."
	field.SetValue(pasted)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasted})
	approx(t, "UnmodifiedPastes after paste", h.State().Factors.UnmodifiedPastes, 1)

	// The second sentence is rewritten; only the first fragment survives
	// verbatim. Half the fragments survive and 16 of 35 field bytes are
	// consumed by the verbatim match.
	edited := "alpha beta gamma. my own words here"
	field.SetValue(edited)
	h.OnInput(InputEvent{At: t0.Add(2 * time.Minute)})

	want := (0.5 + 16.0/35.0) / 2
	approx(t, "UnmodifiedPastes after edit", h.State().Factors.UnmodifiedPastes, want)
}

func TestInitializeConfig(t *testing.T) {
	s := newTestSession(t0)

	s.Initialize("user-1", nil, nil)
	if got := s.Config(); got != DefaultConfig() {
		t.Errorf("nil config = %+v, want defaults", got)
	}

	// Partial overrides start from the defaults and mutate.
	cfg := DefaultConfig()
	cfg.PasteSizeThreshold = 5
	s.Initialize("user-1", &cfg, nil)
	got := s.Config()
	if got.PasteSizeThreshold != 5 {
		t.Errorf("PasteSizeThreshold = %d, want 5", got.PasteSizeThreshold)
	}
	if got.Weights != DefaultConfig().Weights {
		t.Errorf("Weights = %+v, want default %+v", got.Weights, DefaultConfig().Weights)
	}
}

func TestInitializeHonorsExplicitZeroes(t *testing.T) {
	s := newTestSession(t0)

	cfg := DefaultConfig()
	cfg.PasteSizeThreshold = 0
	cfg.MinTabEventTimeWeight = 0
	s.Initialize("user-1", &cfg, nil)

	got := s.Config()
	if got.PasteSizeThreshold != 0 {
		t.Errorf("PasteSizeThreshold = %d, want explicit 0", got.PasteSizeThreshold)
	}
	if got.MinTabEventTimeWeight != 0 {
		t.Errorf("MinTabEventTimeWeight = %v, want explicit 0", got.MinTabEventTimeWeight)
	}

	// A zero paste threshold admits pastes of any length.
	field, h := newActiveHandle(t, s, KindMultiLineText)
	field.SetValue("short text")
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: "short text"})
	if got := len(h.State().Contributions); got != 1 {
		t.Errorf("contributions = %d, want 1", got)
	}
}

func TestInitializeAtAnchorsEventLog(t *testing.T) {
	// Real session clock; every event carries a historical timestamp. The
	// initial focus interval must open at the supplied anchor, so a paste
	// ten minutes in sits outside the five-minute tab window.
	s := NewSession(nil)
	s.InitializeAt("user-1", nil, nil, t0)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	s.OnCopy(CopyEvent{At: t0.Add(570 * time.Second), Text: copyText}) // 9.5 min
	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(10 * time.Minute), Text: pasteText})

	st := h.State()
	if len(st.Contributions) != 1 {
		t.Fatalf("contributions = %d, want 1", len(st.Contributions))
	}
	c := st.Contributions[0]
	approx(t, "CopyFactor", c.CopyFactor, 0.9)
	approx(t, "TabSwitchFactor", c.TabSwitchFactor, 0)
	approx(t, "PasteScore", c.PasteScore, 0)
	approx(t, "Score", c.Score, 0)

	// ChangeUserAt re-anchors the reset log the same way.
	t1 := t0.Add(time.Hour)
	if err := s.ChangeUserAt(context.Background(), "user-2", t1); err != nil {
		t.Fatalf("ChangeUserAt: %v", err)
	}
	s.OnCopy(CopyEvent{At: t1, Text: copyText})
	h.OnPaste(PasteEvent{At: t1.Add(time.Minute), Text: pasteText})

	st = h.State()
	if len(st.Contributions) != 1 {
		t.Fatalf("contributions after user change = %d, want 1", len(st.Contributions))
	}
	approx(t, "TabSwitchFactor", st.Contributions[0].TabSwitchFactor, 1-1.0/5.0)
}

func TestFactorsStoredNotFolded(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, &Factors{PriorCaughtRate: 0.9, NonNativeLanguage: true})
	field, h := newActiveHandle(t, s, KindMultiLineText)

	if got := s.Factors(); got.PriorCaughtRate != 0.9 || !got.NonNativeLanguage {
		t.Errorf("Factors = %+v", got)
	}

	// Exogenous factors do not move the confidence.
	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})
	withFactors := h.LastAnalysis().Confidence

	s2 := newTestSession(t0)
	s2.Initialize("user-1", nil, nil)
	field2, h2 := newActiveHandle(t, s2, KindMultiLineText)
	field2.SetValue(pasteText)
	h2.OnPaste(PasteEvent{At: t0.Add(time.Minute), Text: pasteText})

	approx(t, "Confidence", withFactors, h2.LastAnalysis().Confidence)
}

func TestStateRoundTripsThroughJSON(t *testing.T) {
	s := newTestSession(t0)
	s.Initialize("user-1", nil, nil)
	field, h := newActiveHandle(t, s, KindMultiLineText)

	s.OnCopy(CopyEvent{At: t0, Text: copyText})
	field.SetValue(pasteText)
	h.OnPaste(PasteEvent{At: t0.Add(2 * time.Minute), Text: pasteText})

	data, err := json.Marshal(h.State())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored HandleState
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	s2 := newTestSession(t0)
	s2.Initialize("user-1", nil, nil)
	field2 := NewTextField("answer", KindMultiLineText)
	field2.SetValue(pasteText)
	h2, err := s2.RegisterField(field2)
	if err != nil {
		t.Fatalf("RegisterField: %v", err)
	}
	loader := func(ctx context.Context) (*HandleState, error) { return &restored, nil }
	if err := h2.Initialize(context.Background(), loader); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if h2.State().Factors != h.State().Factors {
		t.Errorf("factors after round trip = %+v, want %+v", h2.State().Factors, h.State().Factors)
	}
	approx(t, "Confidence", h2.LastAnalysis().Confidence, h.LastAnalysis().Confidence)

	// Recomputing from the restored contributions reproduces the factors.
	h2.OnInput(InputEvent{At: t0.Add(2 * time.Minute)})
	got := h2.State().Factors
	want := h.State().Factors
	for _, r := range Reasons {
		approx(t, fmt.Sprintf("recomputed %s", r), got.Value(r), want.Value(r))
	}
}
