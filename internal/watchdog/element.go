package watchdog

import "sync"

// FieldKind classifies a monitored element's input capability. The set is
// closed and resolved once, at registration; only text-capable kinds may be
// initialized.
type FieldKind string

const (
	// KindSingleLineText is a single-line text input.
	KindSingleLineText FieldKind = "single-line-text"
	// KindMultiLineText is a multi-line text area.
	KindMultiLineText FieldKind = "multi-line-text"
	// KindEditableRegion is a rich-text content-editable region.
	KindEditableRegion FieldKind = "editable-region"
	// KindOther is any element without a text-input capability.
	KindOther FieldKind = "other"
)

// TextCapable reports whether the kind can receive typed or pasted text.
func (k FieldKind) TextCapable() bool {
	switch k {
	case KindSingleLineText, KindMultiLineText, KindEditableRegion:
		return true
	}
	return false
}

// Element is the watchdog's view of a monitored form control. The DOM glue
// resolves selectors to Elements; the engine only ever reads identity, kind
// and current content through this interface.
type Element interface {
	// ID identifies the element within its session.
	ID() string
	// Kind is the capability classification resolved at registration.
	Kind() FieldKind
	// Value returns the element's current plain-text content.
	Value() string
}

// TextField is a plain in-memory Element, used by trace replay and by hosts
// without a live DOM. Safe for concurrent use.
type TextField struct {
	id   string
	kind FieldKind

	mu    sync.RWMutex
	value string
}

// NewTextField creates a TextField with the given identity and kind.
func NewTextField(id string, kind FieldKind) *TextField {
	return &TextField{id: id, kind: kind}
}

func (f *TextField) ID() string {
	return f.id
}

func (f *TextField) Kind() FieldKind {
	return f.kind
}

func (f *TextField) Value() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// SetValue replaces the field's content, mirroring what the host control
// holds after an edit.
func (f *TextField) SetValue(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
}
