// Package watchdog implements the copy-paste scoring engine: an explicit
// session object that ingests session-global copy and visibility events,
// plus per-field handles whose paste/input pipeline combines the comparison
// primitives, the AI-signature heuristic and the event log into four
// aggregate factors and a weighted confidence.
//
// All scoring is synchronous and in-memory. The only asynchronous boundary
// is the optional state loader awaited during Initialize/ChangeUser; the
// engine performs no I/O of its own.
package watchdog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pastewatch/internal/eventlog"
	"pastewatch/internal/token"
)

// StateLoader rehydrates a field handle's persisted state. A nil state with
// a nil error means no persisted state exists and the handle starts empty.
// The persistence worker supplies it; the engine only awaits it.
type StateLoader func(ctx context.Context) (*HandleState, error)

// Session is one monitoring session. Sessions are explicit and
// independently constructible; nothing in the engine is process-global.
type Session struct {
	mu sync.Mutex

	id     string
	logger *slog.Logger

	userID     string
	cfg        Config
	factors    Factors
	monitoring bool

	tokenizer *token.Tokenizer
	events    *eventlog.Log
	handles   map[string]*Handle

	now func() time.Time
}

// NewSession creates a session. The logger may be nil, in which case
// logging is discarded. The session does not monitor until Initialize is
// called.
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		id:        uuid.NewString(),
		logger:    logger,
		tokenizer: token.New(),
		handles:   make(map[string]*Handle),
		now:       time.Now,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Initialize starts monitoring for userID at the current time. A nil cfg
// selects the defaults; a non-nil cfg is taken as the complete effective
// configuration, zero values included, so callers supplying a partial
// override should start from DefaultConfig. Re-initializing resets the
// event log but keeps registered handles.
func (s *Session) Initialize(userID string, cfg *Config, factors *Factors) {
	s.InitializeAt(userID, cfg, factors, time.Time{})
}

// InitializeAt starts monitoring as of at, which anchors the initial focus
// interval. Replay paths pass the recorded session timestamp so the event
// log stays in the trace's clock domain; a zero at falls back to the
// session clock.
func (s *Session) InitializeAt(userID string, cfg *Config, factors *Factors, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = userID
	if cfg != nil {
		s.cfg = *cfg
	} else {
		s.cfg = DefaultConfig()
	}
	s.factors = mergedFactors(factors)
	s.events = eventlog.New(s.tokenizer, s.cfg.CopySizeThreshold, s.eventTime(at))
	s.monitoring = true

	s.logger.Info("session initialized",
		"session_id", s.id,
		"user_id", userID,
		"copy_size_threshold", s.cfg.CopySizeThreshold,
		"paste_size_threshold", s.cfg.PasteSizeThreshold)
}

// Stop ends monitoring and stops every handle. Handle state is preserved;
// Stop is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	handles := s.handleList()
	s.monitoring = false
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	s.logger.Info("session stopped", "session_id", s.id)
}

// ChangeUser switches the session to a different user: the event log is
// reset and every initialized handle is rehydrated through its loader. A
// loader failure propagates and leaves that handle stopped.
func (s *Session) ChangeUser(ctx context.Context, userID string) error {
	return s.ChangeUserAt(ctx, userID, time.Time{})
}

// ChangeUserAt is ChangeUser with the event-log reset anchored at at, for
// replay paths. A zero at falls back to the session clock.
func (s *Session) ChangeUserAt(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	if !s.monitoring {
		s.mu.Unlock()
		return ErrUninitializedSession
	}
	s.userID = userID
	s.events.Reset(s.eventTime(at))
	handles := s.handleList()
	s.mu.Unlock()

	for _, h := range handles {
		if err := h.reload(ctx); err != nil {
			return fmt.Errorf("reload field %q: %w", h.Field().ID(), err)
		}
	}

	s.logger.Info("session user changed", "session_id", s.id, "user_id", userID)
	return nil
}

// UserID returns the current user.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Monitoring reports whether the session is actively monitoring.
func (s *Session) Monitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoring
}

// Config returns the effective merged configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Factors returns the exogenous factors supplied at initialization.
func (s *Session) Factors() Factors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.factors
}

// OnCopy ingests a session-global copy event. Copies below the size
// threshold are dropped by the event log.
func (s *Session) OnCopy(ev CopyEvent) {
	s.mu.Lock()
	events := s.events
	monitoring := s.monitoring
	s.mu.Unlock()

	if !monitoring || events == nil {
		return
	}
	events.RecordCopy(ev.Text, s.eventTime(ev.At))
}

// OnVisibilityChange ingests a tab visibility transition.
func (s *Session) OnVisibilityChange(ev VisibilityEvent) {
	s.mu.Lock()
	events := s.events
	monitoring := s.monitoring
	s.mu.Unlock()

	if !monitoring || events == nil {
		return
	}
	events.SetHidden(ev.Hidden, s.eventTime(ev.At))
}

// RegisterField registers the element a selector resolved to. The
// resolution must contain exactly one element; anything else fails with
// ErrSelectorCardinality. The element's capability is classified here,
// once; Initialize later rejects non-text kinds.
func (s *Session) RegisterField(resolved ...Element) (*Handle, error) {
	if len(resolved) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrSelectorCardinality, len(resolved))
	}
	return s.register(resolved[0]), nil
}

// RegisterFields registers one handle per resolved element. An empty
// resolution fails with ErrSelectorCardinality.
func (s *Session) RegisterFields(resolved ...Element) ([]*Handle, error) {
	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: got 0", ErrSelectorCardinality)
	}
	handles := make([]*Handle, len(resolved))
	for i, el := range resolved {
		handles[i] = s.register(el)
	}
	return handles, nil
}

// Handles returns the registered handles in unspecified order.
func (s *Session) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handleList()
}

func (s *Session) register(el Element) *Handle {
	h := &Handle{
		id:      uuid.NewString(),
		element: el,
		session: s,
	}

	s.mu.Lock()
	s.handles[h.id] = h
	s.mu.Unlock()

	s.logger.Debug("field registered",
		"session_id", s.id,
		"field_id", el.ID(),
		"kind", el.Kind())
	return h
}

func (s *Session) unregister(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

func (s *Session) handleList() []*Handle {
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	return out
}

// eventLog returns the current event log, which may be nil before
// Initialize.
func (s *Session) eventLog() *eventlog.Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// eventTime substitutes the session clock for zero event timestamps.
func (s *Session) eventTime(at time.Time) time.Time {
	if at.IsZero() {
		return s.now()
	}
	return at
}
