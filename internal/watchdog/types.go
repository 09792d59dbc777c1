package watchdog

import "time"

// Reason names one of the four aggregate signals a field accumulates.
type Reason string

const (
	ReasonCopyRelatesToPaste          Reason = "COPY_RELATES_TO_PASTE"
	ReasonContentContainsAISignatures Reason = "CONTENT_CONTAINS_AI_SIGNATURES"
	ReasonUnmodifiedPastes            Reason = "UNMODIFIED_PASTES"
	ReasonKeepsSwitchingTabs          Reason = "KEEPS_SWITCHING_TABS_AND_COPY_PASTING"
)

// Reasons lists the four factors in their canonical order.
var Reasons = []Reason{
	ReasonCopyRelatesToPaste,
	ReasonContentContainsAISignatures,
	ReasonUnmodifiedPastes,
	ReasonKeepsSwitchingTabs,
}

// Contribution is the immutable record of one qualifying paste event and
// its derived scores. It is owned by exactly one field handle and never
// mutated after being appended.
type Contribution struct {
	Timestamp       time.Time `json:"timestamp"`
	Content         string    `json:"content"`
	Similarity      float64   `json:"similarity"`
	Containment     float64   `json:"containment"`
	CopyFactor      float64   `json:"copy_factor"`
	TabSwitchFactor float64   `json:"tab_switch_factor"`
	PasteScore      float64   `json:"paste_score"`
	AIScore         float64   `json:"ai_score"`
	Score           float64   `json:"score"`
}

// FactorValues holds the four running aggregate factor values, each in
// [0, 1].
type FactorValues struct {
	CopyRelatesToPaste          float64 `json:"copy_relates_to_paste"`
	ContentContainsAISignatures float64 `json:"content_contains_ai_signatures"`
	UnmodifiedPastes            float64 `json:"unmodified_pastes"`
	KeepsSwitchingTabs          float64 `json:"keeps_switching_tabs_and_copy_pasting"`
}

// Value returns the factor value for a reason.
func (f FactorValues) Value(r Reason) float64 {
	switch r {
	case ReasonCopyRelatesToPaste:
		return f.CopyRelatesToPaste
	case ReasonContentContainsAISignatures:
		return f.ContentContainsAISignatures
	case ReasonUnmodifiedPastes:
		return f.UnmodifiedPastes
	case ReasonKeepsSwitchingTabs:
		return f.KeepsSwitchingTabs
	}
	return 0
}

// HandleState is the complete persistable state of one monitored field:
// the four factor values plus the contribution list. It is recomputed in
// full from the contribution list and the current field content on every
// input/paste event, and round-trips through JSON with no hidden derived
// state.
type HandleState struct {
	Factors       FactorValues   `json:"factors"`
	Contributions []Contribution `json:"contributions"`
}

// Clone returns a deep copy of the state.
func (s HandleState) Clone() HandleState {
	out := HandleState{Factors: s.Factors}
	if len(s.Contributions) > 0 {
		out.Contributions = make([]Contribution, len(s.Contributions))
		copy(out.Contributions, s.Contributions)
	}
	return out
}

// Analysis is the scoring breakdown exposed to callers: the unweighted
// factor values, the weighted values, and their sum.
type Analysis struct {
	Raw        map[Reason]float64 `json:"raw"`
	Weighted   map[Reason]float64 `json:"weighted"`
	Confidence float64            `json:"confidence"`
}

// CopyEvent is a session-global copy carrying the copied plain text.
type CopyEvent struct {
	At   time.Time
	Text string
}

// VisibilityEvent is a session-global tab visibility transition.
type VisibilityEvent struct {
	At     time.Time
	Hidden bool
}

// PasteEvent is a field-level paste carrying the pasted plain text.
type PasteEvent struct {
	At   time.Time
	Text string
}

// InputEvent is a field-level input notification. It carries no payload;
// it only triggers a factor recompute against the field's current content.
type InputEvent struct {
	At time.Time
}
