package watchdog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"pastewatch/internal/aisign"
	"pastewatch/internal/eventlog"
	"pastewatch/internal/textcmp"
)

// similarityDiscardThreshold: a paste this similar to the last copy is a
// faithful re-paste of already-seen content, not new evidence.
const similarityDiscardThreshold = 0.9

// includesMinimumRelevant is the relevance cutoff applied when correlating
// contribution content against the field's current content.
const includesMinimumRelevant = 0.7

type handleStatus int

const (
	statusRegistered handleStatus = iota
	statusActive
	statusStopped
	statusDestroyed
)

// Handle is the per-field state machine. Lifecycle:
// registered → initialized/active ⇄ stopped → destroyed.
type Handle struct {
	mu sync.Mutex

	id      string
	element Element
	session *Session

	loader      StateLoader
	initialized bool
	status      handleStatus

	state HandleState
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string {
	return h.id
}

// Field returns the monitored element.
func (h *Handle) Field() Element {
	return h.element
}

// Initialize activates the handle. It fails when the session is not
// monitoring or the element is not text-capable. If a loader is supplied,
// it is awaited and its state rehydrates the handle before it becomes
// active; a loader failure leaves the handle inactive.
func (h *Handle) Initialize(ctx context.Context, loader StateLoader) error {
	if !h.session.Monitoring() {
		return ErrUninitializedSession
	}
	if !h.element.Kind().TextCapable() {
		return fmt.Errorf("%w: %q has kind %s", ErrInvalidFieldType, h.element.ID(), h.element.Kind())
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status == statusDestroyed {
		return fmt.Errorf("%w: handle destroyed", ErrHandleNotInitialized)
	}

	if loader != nil {
		st, err := loader(ctx)
		if err != nil {
			return fmt.Errorf("load state for field %q: %w", h.element.ID(), err)
		}
		if st != nil {
			h.state = st.Clone()
		}
	}

	h.loader = loader
	h.initialized = true
	h.status = statusActive
	return nil
}

// Restart re-arms event ingestion after a Stop. It fails when Initialize
// has never succeeded.
func (h *Handle) Restart() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized || h.status == statusDestroyed {
		return ErrHandleNotInitialized
	}
	h.status = statusActive
	return nil
}

// Stop detaches the handle from event ingestion but preserves accumulated
// state. Idempotent.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status == statusActive {
		h.status = statusStopped
	}
}

// Destroy stops the handle and removes it from the session registry.
func (h *Handle) Destroy() {
	h.mu.Lock()
	h.status = statusDestroyed
	h.mu.Unlock()

	h.session.unregister(h.id)
}

// State returns a copy of the handle's full persistable state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone()
}

// LastAnalysis returns the current factor breakdown: unweighted values,
// weighted values, and their sum as the confidence.
func (h *Handle) LastAnalysis() Analysis {
	h.mu.Lock()
	factors := h.state.Factors
	h.mu.Unlock()

	weights := h.session.Config().Weights

	analysis := Analysis{
		Raw:      make(map[Reason]float64, len(Reasons)),
		Weighted: make(map[Reason]float64, len(Reasons)),
	}
	for _, r := range Reasons {
		raw := factors.Value(r)
		weighted := raw * weights.Value(r)
		analysis.Raw[r] = raw
		analysis.Weighted[r] = weighted
		analysis.Confidence += weighted
	}
	return analysis
}

// OnPaste runs the paste pipeline for a paste carrying plain text. Pastes
// are ignored while the handle is not active, when the payload is empty or
// under the size threshold, and when the payload is a near-verbatim
// re-paste of the last copy.
func (h *Handle) OnPaste(ev PasteEvent) {
	cfg := h.session.Config()
	if ev.Text == "" || len(ev.Text) < cfg.PasteSizeThreshold {
		return
	}
	log := h.session.eventLog()
	if log == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status != statusActive {
		return
	}

	now := h.session.eventTime(ev.At)
	snap := log.Snapshot()
	tokens := h.session.tokenizer.Tokenize(ev.Text)

	var lastTokens []string
	if snap.LastCopy != nil {
		lastTokens = snap.LastCopy.Tokens
	}

	similarity := textcmp.Similarity(tokens, lastTokens)
	if similarity > similarityDiscardThreshold {
		h.session.logger.Debug("paste discarded as re-paste of last copy",
			"field_id", h.element.ID(),
			"similarity", similarity)
		return
	}

	containment := 0.0
	copyFactor := 0.0
	if snap.LastCopy != nil {
		containment = textcmp.Containment(snap.LastCopy.Tokens, tokens)
		copyFactor = timeDecay(now.Sub(snap.LastCopy.Timestamp),
			cfg.RelevantCopyEventMinutes, cfg.MinCopyEventTimeWeight)
	}

	tabSwitchFactor := 0.0
	if snap.ActiveInterval != nil {
		tabSwitchFactor = timeDecay(now.Sub(snap.ActiveInterval.FocusedIn),
			cfg.RelevantTabInOutEventMinutes, cfg.MinTabEventTimeWeight)
	}

	// Multiplicative AND: containment, copy recency and tab recency must
	// all be non-trivially positive for a non-zero paste score.
	pasteScore := containment * copyFactor * tabSwitchFactor

	aiScore := aisign.Score(ev.Text, aisign.DefaultThreshold)

	// When the AI score dominates it discounts the paste score rather than
	// overriding it.
	score := pasteScore
	if aiScore >= pasteScore {
		score = pasteScore * aiScore
	}

	h.state.Contributions = append(h.state.Contributions, Contribution{
		Timestamp:       now,
		Content:         ev.Text,
		Similarity:      similarity,
		Containment:     containment,
		CopyFactor:      copyFactor,
		TabSwitchFactor: tabSwitchFactor,
		PasteScore:      pasteScore,
		AIScore:         aiScore,
		Score:           score,
	})

	h.recomputeLocked(now)

	h.session.logger.Debug("paste contribution recorded",
		"field_id", h.element.ID(),
		"similarity", similarity,
		"containment", containment,
		"paste_score", pasteScore,
		"ai_score", aiScore,
		"score", score)
}

// OnInput triggers a full factor recompute against the field's current
// content. The event carries no payload.
func (h *Handle) OnInput(ev InputEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status != statusActive {
		return
	}
	h.recomputeLocked(h.session.eventTime(ev.At))
}

// reload rehydrates the handle through its stored loader after a user
// change. Without a loader the state resets to empty. On loader failure
// the handle is left stopped.
func (h *Handle) reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized || h.status == statusDestroyed {
		return nil
	}

	h.status = statusStopped
	h.state = HandleState{}

	if h.loader != nil {
		st, err := h.loader(ctx)
		if err != nil {
			return fmt.Errorf("load state for field %q: %w", h.element.ID(), err)
		}
		if st != nil {
			h.state = st.Clone()
		}
	}

	h.status = statusActive
	return nil
}

// recomputeLocked recomputes all four aggregate factors from scratch from
// the contribution list and the field's current content. Full recompute on
// every event is the contract; the unmodified-pastes and tab-switch
// factors are not running sums and cannot be updated incrementally.
func (h *Handle) recomputeLocked(now time.Time) {
	content := h.element.Value()
	fieldTokens := h.session.tokenizer.Tokenize(content)
	contribs := h.state.Contributions

	var factors FactorValues
	if len(contribs) > 0 {
		sumCopy := 0.0
		sumAI := 0.0
		included := make([]float64, len(contribs))
		for i, c := range contribs {
			inc := textcmp.IncludesScore(fieldTokens,
				h.session.tokenizer.Tokenize(c.Content), includesMinimumRelevant)
			included[i] = inc
			sumCopy += inc * c.Score
			sumAI += inc * c.AIScore
		}
		n := float64(len(contribs))
		factors.CopyRelatesToPaste = sumCopy / n
		factors.ContentContainsAISignatures = sumAI / n
		factors.UnmodifiedPastes = unmodifiedPastes(content, contribs)
		factors.KeepsSwitchingTabs = tabSwitchPattern(contribs, included,
			h.session.eventLog(), now)
	}

	h.state.Factors = factors
}

// timeDecay maps the gap between a reference event and a paste onto a
// weight: 1 at zero gap, linearly down toward 0 at the window edge but
// never below floor, and 0 outside the window entirely.
func timeDecay(gap time.Duration, windowMinutes, floor float64) float64 {
	if windowMinutes <= 0 {
		return 0
	}
	gapMin := gap.Minutes()
	if gapMin < 0 {
		gapMin = 0
	}
	if gapMin > windowMinutes {
		return 0
	}
	weight := 1 - gapMin/windowMinutes
	if weight < floor {
		weight = floor
	}
	return weight
}

// fragmentSplit separates sentence-like fragments: sentence-ending
// punctuation or line breaks.
var fragmentSplit = regexp.MustCompile(`[.!?\r\n]+`)

// unmodifiedPastes scores how much pasted content survives verbatim in the
// field. Each contribution is first sought as a literal substring of a
// working copy of the content; a hit counts fully and is removed from the
// working copy so overlapping pastes are not double-counted. A miss falls
// back to sentence-like fragments, counting the fraction still found
// verbatim and removing each hit likewise. The factor averages the
// unmodified-contribution ratio with the fraction of field characters
// consumed by verbatim matches.
func unmodifiedPastes(content string, contribs []Contribution) float64 {
	if len(contribs) == 0 {
		return 0
	}

	working := content
	unmodified := 0.0

	for _, c := range contribs {
		if c.Content != "" {
			if idx := strings.Index(working, c.Content); idx >= 0 {
				unmodified++
				working = working[:idx] + working[idx+len(c.Content):]
				continue
			}
		}

		fragments := splitFragments(c.Content)
		if len(fragments) == 0 {
			continue
		}
		found := 0
		for _, frag := range fragments {
			if idx := strings.Index(working, frag); idx >= 0 {
				found++
				working = working[:idx] + working[idx+len(frag):]
			}
		}
		unmodified += float64(found) / float64(len(fragments))
	}

	unmodifiedRatio := unmodified / float64(len(contribs))

	consumedRatio := 0.0
	if len(content) > 0 {
		consumedRatio = 1 - float64(len(working))/float64(len(content))
	}

	return (unmodifiedRatio + consumedRatio) / 2
}

func splitFragments(text string) []string {
	parts := fragmentSplit.Split(text, -1)
	fragments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fragments = append(fragments, p)
		}
	}
	return fragments
}

// tabSwitchPattern walks consecutive pairs of focus intervals and, for each
// pair whose window contains at least one contribution, records the
// strongest contribution in that window as one pattern sample. The factor
// is the mean of the samples, or 0 when fewer than two intervals exist or
// no window holds a paste. included[i] is the contribution's includes-score
// against the current field content.
func tabSwitchPattern(contribs []Contribution, included []float64, log *eventlog.Log, now time.Time) float64 {
	if log == nil {
		return 0
	}
	intervals := log.Intervals()
	if len(intervals) < 2 {
		return 0
	}

	sampleSum := 0.0
	sampleCount := 0

	for i := 0; i+1 < len(intervals); i++ {
		start := intervals[i].FocusedIn
		if intervals[i].Closed() {
			start = intervals[i].FocusedOut
		}
		end := now
		if intervals[i+1].Closed() {
			end = intervals[i+1].FocusedOut
		}

		best := 0.0
		hit := false
		for j, c := range contribs {
			if c.Timestamp.Before(start) || c.Timestamp.After(end) {
				continue
			}
			hit = true
			if sample := included[j] * c.Score; sample > best {
				best = sample
			}
		}
		if hit {
			sampleSum += best
			sampleCount++
		}
	}

	if sampleCount == 0 {
		return 0
	}
	return sampleSum / float64(sampleCount)
}
