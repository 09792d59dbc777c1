package trace

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"pastewatch/internal/watchdog"
)

// LoaderFactory produces a state loader for a (user, field) pair, or nil
// when no persisted state should be consulted.
type LoaderFactory func(userID, fieldID string) watchdog.StateLoader

// Replayer drives a watchdog session from trace records, maintaining an
// in-memory TextField per monitored field so input/paste records can
// update field content the way a live DOM would.
type Replayer struct {
	session *watchdog.Session
	cfg     *watchdog.Config
	factors *watchdog.Factors
	loaders LoaderFactory
	logger  *slog.Logger

	fields map[string]*binding
}

type binding struct {
	field  *watchdog.TextField
	handle *watchdog.Handle
}

// NewReplayer creates a replayer for session. cfg, factors and loaders may
// be nil.
func NewReplayer(session *watchdog.Session, cfg *watchdog.Config, factors *watchdog.Factors, loaders LoaderFactory, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Replayer{
		session: session,
		cfg:     cfg,
		factors: factors,
		loaders: loaders,
		logger:  logger,
		fields:  make(map[string]*binding),
	}
}

// Session returns the driven session.
func (r *Replayer) Session() *watchdog.Session {
	return r.session
}

// Fields returns the handle for each replayed field, keyed by field ID.
func (r *Replayer) Fields() map[string]*watchdog.Handle {
	out := make(map[string]*watchdog.Handle, len(r.fields))
	for id, b := range r.fields {
		out[id] = b.handle
	}
	return out
}

// ReplayAll applies records in order.
func (r *Replayer) ReplayAll(ctx context.Context, records []Record) error {
	for i, rec := range records {
		if err := r.Apply(ctx, rec); err != nil {
			return fmt.Errorf("record %d (%s): %w", i+1, rec.Type, err)
		}
	}
	return nil
}

// Apply applies one record to the session.
func (r *Replayer) Apply(ctx context.Context, rec Record) error {
	switch rec.Type {
	case "session":
		return r.applySession(ctx, rec)
	case "field":
		return r.applyField(ctx, rec)
	case "copy":
		r.session.OnCopy(watchdog.CopyEvent{At: rec.At, Text: rec.Text})
		return nil
	case "visibility":
		r.session.OnVisibilityChange(watchdog.VisibilityEvent{At: rec.At, Hidden: rec.Hidden})
		return nil
	case "paste":
		return r.applyPaste(rec)
	case "input":
		return r.applyInput(rec)
	}
	return fmt.Errorf("unknown record type %q", rec.Type)
}

// applySession anchors the event log at the record's timestamp so every
// focus interval lives in the trace's clock domain, not the replayer's.
func (r *Replayer) applySession(ctx context.Context, rec Record) error {
	if r.session.Monitoring() {
		return r.session.ChangeUserAt(ctx, rec.User, rec.At)
	}
	r.session.InitializeAt(rec.User, r.cfg, r.factors, rec.At)
	return nil
}

func (r *Replayer) applyField(ctx context.Context, rec Record) error {
	if _, exists := r.fields[rec.Field]; exists {
		return fmt.Errorf("field %q already registered", rec.Field)
	}

	field := watchdog.NewTextField(rec.Field, parseKind(rec.Kind))
	handle, err := r.session.RegisterField(field)
	if err != nil {
		return err
	}

	var loader watchdog.StateLoader
	if r.loaders != nil {
		loader = r.loaders(r.session.UserID(), rec.Field)
	}
	if err := handle.Initialize(ctx, loader); err != nil {
		return err
	}

	r.fields[rec.Field] = &binding{field: field, handle: handle}
	r.logger.Debug("trace field initialized", "field_id", rec.Field, "kind", rec.Kind)
	return nil
}

func (r *Replayer) applyPaste(rec Record) error {
	b, ok := r.fields[rec.Field]
	if !ok {
		return fmt.Errorf("paste into unregistered field %q", rec.Field)
	}
	b.field.SetValue(rec.Content)
	b.handle.OnPaste(watchdog.PasteEvent{At: rec.At, Text: rec.Text})
	return nil
}

func (r *Replayer) applyInput(rec Record) error {
	b, ok := r.fields[rec.Field]
	if !ok {
		return fmt.Errorf("input on unregistered field %q", rec.Field)
	}
	b.field.SetValue(rec.Content)
	b.handle.OnInput(watchdog.InputEvent{At: rec.At})
	return nil
}

func parseKind(kind string) watchdog.FieldKind {
	switch watchdog.FieldKind(kind) {
	case watchdog.KindSingleLineText, watchdog.KindMultiLineText, watchdog.KindEditableRegion:
		return watchdog.FieldKind(kind)
	}
	return watchdog.KindOther
}
