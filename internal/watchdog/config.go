package watchdog

// Config holds the engine weights, size thresholds, decay floors and
// relevance windows. Weights should sum to 1.0 across the four reasons;
// the engine does not enforce this, it is the caller's responsibility.
type Config struct {
	// Weights scale each aggregate factor's share of the confidence.
	Weights Weights `toml:"weights" json:"weights" yaml:"weights"`

	// CopySizeThreshold is the minimum copied-text length, in bytes, for a
	// copy event to be recorded.
	CopySizeThreshold int `toml:"copy_size_threshold" json:"copy_size_threshold" yaml:"copy_size_threshold"`

	// PasteSizeThreshold is the minimum pasted-text length, in bytes, for
	// a paste to qualify for a contribution.
	PasteSizeThreshold int `toml:"paste_size_threshold" json:"paste_size_threshold" yaml:"paste_size_threshold"`

	// RelevantCopyEventMinutes is the window within which a prior copy is
	// considered related to a paste.
	RelevantCopyEventMinutes float64 `toml:"relevant_copy_event_minutes" json:"relevant_copy_event_minutes" yaml:"relevant_copy_event_minutes"`

	// RelevantTabInOutEventMinutes is the window within which the current
	// focus interval's start is considered related to a paste.
	RelevantTabInOutEventMinutes float64 `toml:"relevant_tab_in_out_event_minutes" json:"relevant_tab_in_out_event_minutes" yaml:"relevant_tab_in_out_event_minutes"`

	// MinCopyEventTimeWeight floors the linear copy-factor decay.
	MinCopyEventTimeWeight float64 `toml:"min_copy_event_time_weight" json:"min_copy_event_time_weight" yaml:"min_copy_event_time_weight"`

	// MinTabEventTimeWeight floors the linear tab-switch-factor decay.
	MinTabEventTimeWeight float64 `toml:"min_tab_event_time_weight" json:"min_tab_event_time_weight" yaml:"min_tab_event_time_weight"`
}

// Weights are the per-reason confidence weights.
type Weights struct {
	CopyRelatesToPaste          float64 `toml:"copy_relates_to_paste" json:"copy_relates_to_paste" yaml:"copy_relates_to_paste"`
	ContentContainsAISignatures float64 `toml:"content_contains_ai_signatures" json:"content_contains_ai_signatures" yaml:"content_contains_ai_signatures"`
	UnmodifiedPastes            float64 `toml:"unmodified_pastes" json:"unmodified_pastes" yaml:"unmodified_pastes"`
	KeepsSwitchingTabs          float64 `toml:"keeps_switching_tabs_and_copy_pasting" json:"keeps_switching_tabs_and_copy_pasting" yaml:"keeps_switching_tabs_and_copy_pasting"`
}

// Value returns the weight for a reason.
func (w Weights) Value(r Reason) float64 {
	switch r {
	case ReasonCopyRelatesToPaste:
		return w.CopyRelatesToPaste
	case ReasonContentContainsAISignatures:
		return w.ContentContainsAISignatures
	case ReasonUnmodifiedPastes:
		return w.UnmodifiedPastes
	case ReasonKeepsSwitchingTabs:
		return w.KeepsSwitchingTabs
	}
	return 0
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			CopyRelatesToPaste:          0.35,
			ContentContainsAISignatures: 0.15,
			UnmodifiedPastes:            0.25,
			KeepsSwitchingTabs:          0.25,
		},
		CopySizeThreshold:            10,
		PasteSizeThreshold:           20,
		RelevantCopyEventMinutes:     5,
		RelevantTabInOutEventMinutes: 5,
		MinCopyEventTimeWeight:       0.5,
		MinTabEventTimeWeight:        0.5,
	}
}

// Factors are exogenous signals supplied at session initialization. They
// are stored and surfaced but not yet folded into the confidence. They are
// a reserved extension point.
type Factors struct {
	// DeadlineRemainingMinutes is how long until the exam deadline.
	DeadlineRemainingMinutes float64 `toml:"deadline_remaining_minutes" json:"deadline_remaining_minutes" yaml:"deadline_remaining_minutes"`

	// PriorCaughtRate is the fraction of prior sessions in which this user
	// was flagged.
	PriorCaughtRate float64 `toml:"prior_caught_rate" json:"prior_caught_rate" yaml:"prior_caught_rate"`

	// NonNativeLanguage marks users writing in a non-native language.
	NonNativeLanguage bool `toml:"non_native_language" json:"non_native_language" yaml:"non_native_language"`
}

func mergedFactors(override *Factors) Factors {
	if override == nil {
		return Factors{}
	}
	return *override
}
