package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

// envelopeVersion tags exported files so future format changes can be
// detected on import.
const envelopeVersion = 1

// maxSharePayload is the practical ceiling for a payload that still
// renders as a scannable QR code once embedded in a URL. Beyond it the
// caller must fall back to file export.
const maxSharePayload = 2950

// ErrShareTooLarge signals that an event is too big for a shareable
// link.
var ErrShareTooLarge = errors.New("event too large for a shareable link")

// ImportPolicy selects how an import resolves an id collision.
type ImportPolicy int

const (
	// ReplaceIfExists overwrites the stored event with the same id.
	ReplaceIfExists ImportPolicy = iota
	// KeepBoth imports under a freshly generated id, preserving the
	// existing event.
	KeepBoth
)

// ExportEnvelope is the versioned wrapper around one exported event.
// Validation flags are deliberately not part of the envelope.
type ExportEnvelope struct {
	Version    int          `json:"version"`
	ExportedAt time.Time    `json:"exported_at"`
	Event      *model.Event `json:"event"`
}

// ExportEvent wraps one event in a versioned envelope.
func (s *Store) ExportEvent(slug, eventID string) (*ExportEnvelope, error) {
	evt, err := s.GetEvent(slug, eventID)
	if err != nil {
		return nil, err
	}
	return &ExportEnvelope{
		Version:    envelopeVersion,
		ExportedAt: time.Now().UTC(),
		Event:      evt,
	}, nil
}

// ImportEvent stores an exported event. With KeepBoth a colliding id is
// replaced by a fresh one so both copies survive.
func (s *Store) ImportEvent(slug string, env *ExportEnvelope, policy ImportPolicy) (*model.Event, error) {
	if env == nil || env.Event == nil {
		return nil, errors.New("import envelope holds no event")
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}

	evt := env.Event
	if policy == KeepBoth {
		if existing, err := s.GetEvent(slug, evt.ID); err == nil && existing != nil {
			evt.ID = NewEventID()
		}
	}
	if err := s.SaveEvent(slug, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// EncodeShare packs one event into a compressed, URL-safe string
// suitable for a link query parameter or a QR code. Validations are
// excluded to keep the payload small; callers must warn the user of
// this. Oversized events return ErrShareTooLarge and should fall back
// to file export.
func EncodeShare(evt *model.Event) (string, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("encoding event: %w", err)
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("compressing event: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("compressing event: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("compressing event: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(buf.Bytes())
	if len(encoded) > maxSharePayload {
		return "", fmt.Errorf("%w: %d characters", ErrShareTooLarge, len(encoded))
	}
	return encoded, nil
}

// DecodeShare reverses EncodeShare. Any corruption is reported as an
// error; decoding never panics on hostile input.
func DecodeShare(encoded string) (*model.Event, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding share payload: %w", err)
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("decompressing share payload: %w", err)
	}

	var evt model.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("parsing shared event: %w", err)
	}
	if evt.ID == "" {
		return nil, errors.New("shared event is missing its id")
	}
	return &evt, nil
}

// ImportShare decodes a share code and stores the carried event under
// the slug, following the same collision policy as ImportEvent. A
// corrupt code is reported as an error before anything is written.
func (s *Store) ImportShare(slug, code string, policy ImportPolicy) (*model.Event, error) {
	evt, err := DecodeShare(code)
	if err != nil {
		return nil, err
	}
	env := &ExportEnvelope{
		Version:    envelopeVersion,
		ExportedAt: time.Now().UTC(),
		Event:      evt,
	}
	return s.ImportEvent(slug, env, policy)
}
