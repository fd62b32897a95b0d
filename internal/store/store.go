// Package store persists club-scoped tournament data as JSON documents
// under a data directory. Every durable read and write is qualified by
// a club slug (see Slugify): data for two clubs never shares a file,
// and no code path reads across namespaces.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/crypto"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

const (
	filePrefix      = "njt"
	legacyFile      = "njt.json"
	identityFile    = "njt_identity.json"
	credentialsFile = "njt_credentials.json"
)

// ErrEventNotFound is returned by event lookups for unknown ids.
var ErrEventNotFound = errors.New("event not found")

// ErrNoIdentity is returned when no club identity has been created yet.
var ErrNoIdentity = errors.New("no club identity configured")

// Store handles persistence of club-namespaced tournament data.
type Store struct {
	dataDir string
}

// New creates a Store rooted at dataDir, expanding a leading "~/" and
// creating the directory if needed.
func New(dataDir string) (*Store, error) {
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

func (s *Store) dataPath(slug string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", filePrefix, slug))
}

// Load reads the document for a club namespace. A missing document
// triggers the one-time legacy migration: if the un-slugged legacy file
// holds data, it is copied (not moved) into the namespace.
func (s *Store) Load(slug string) (*model.StorageData, error) {
	path := s.dataPath(slug)

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if migrated, ok := s.migrateLegacy(slug); ok {
			return migrated, nil
		}
		return model.NewStorageData(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	return decodeStorageData(raw)
}

// Save writes the document for a club namespace.
func (s *Store) Save(slug string, data *model.StorageData) error {
	if data.Events == nil {
		data.Events = make([]*model.Event, 0)
	}
	if data.Validations == nil {
		data.Validations = make(model.ValidationState)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}
	if err := os.WriteFile(s.dataPath(slug), raw, 0o644); err != nil {
		return fmt.Errorf("writing store: %w", err)
	}
	return nil
}

// migrateLegacy copies the pre-namespacing document into the given
// namespace, leaving the legacy file untouched as a read-only source.
func (s *Store) migrateLegacy(slug string) (*model.StorageData, bool) {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, legacyFile))
	if err != nil {
		return nil, false
	}
	data, err := decodeStorageData(raw)
	if err != nil {
		return nil, false
	}
	if err := s.Save(slug, data); err != nil {
		return nil, false
	}
	return data, true
}

func decodeStorageData(raw []byte) (*model.StorageData, error) {
	var data model.StorageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing store: %w", err)
	}
	if data.Events == nil {
		data.Events = make([]*model.Event, 0)
	}
	if data.Validations == nil {
		data.Validations = make(model.ValidationState)
	}
	return &data, nil
}

// GetEvent returns one event by id.
func (s *Store) GetEvent(slug, eventID string) (*model.Event, error) {
	data, err := s.Load(slug)
	if err != nil {
		return nil, err
	}
	if evt := data.Event(eventID); evt != nil {
		return evt, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
}

// SaveEvent upserts an event by id. A new event also becomes the
// current one.
func (s *Store) SaveEvent(slug string, evt *model.Event) error {
	data, err := s.Load(slug)
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range data.Events {
		if existing.ID == evt.ID {
			data.Events[i] = evt
			replaced = true
			break
		}
	}
	if !replaced {
		data.Events = append(data.Events, evt)
		data.CurrentEventID = evt.ID
	}
	return s.Save(slug, data)
}

// DeleteEvent removes an event and every validation flag of its
// tournaments.
func (s *Store) DeleteEvent(slug, eventID string) error {
	data, err := s.Load(slug)
	if err != nil {
		return err
	}

	kept := data.Events[:0]
	var removed *model.Event
	for _, evt := range data.Events {
		if evt.ID == eventID {
			removed = evt
			continue
		}
		kept = append(kept, evt)
	}
	if removed == nil {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	data.Events = kept
	for i := range removed.Tournaments {
		data.Validations.ClearTournament(removed.Tournaments[i].ID)
	}
	if data.CurrentEventID == eventID {
		data.CurrentEventID = ""
		if len(data.Events) > 0 {
			data.CurrentEventID = data.Events[0].ID
		}
	}
	return s.Save(slug, data)
}

// GetValidation reads one per-round confirmation flag; missing entries
// read as false.
func (s *Store) GetValidation(slug, tournamentID, player string, round int) (bool, error) {
	data, err := s.Load(slug)
	if err != nil {
		return false, err
	}
	return data.Validations.Get(tournamentID, player, round), nil
}

// SetValidation records one per-round confirmation flag.
func (s *Store) SetValidation(slug, tournamentID, player string, round int, ok bool) error {
	data, err := s.Load(slug)
	if err != nil {
		return err
	}
	data.Validations.Set(tournamentID, player, round, ok)
	return s.Save(slug, data)
}

// ClearValidations drops every confirmation flag of one tournament.
func (s *Store) ClearValidations(slug, tournamentID string) error {
	data, err := s.Load(slug)
	if err != nil {
		return err
	}
	data.Validations.ClearTournament(tournamentID)
	return s.Save(slug, data)
}

// LoadIdentity reads the device's club identity (unnamespaced by
// design: it is what selects the namespace).
func (s *Store) LoadIdentity() (*model.ClubIdentity, error) {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, identityFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	var id model.ClubIdentity
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	return &id, nil
}

// CreateIdentity binds this device to a club. The slug derives from
// the display name; an unusable name is a validation error.
func (s *Store) CreateIdentity(clubName string) (*model.ClubIdentity, error) {
	slug, err := Slugify(clubName)
	if err != nil {
		return nil, err
	}
	id := &model.ClubIdentity{
		Name:      strings.TrimSpace(clubName),
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding identity: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, identityFile), raw, 0o644); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}
	return id, nil
}

// ClearIdentity returns the device to the unbound state. Namespaced
// data stays on disk.
func (s *Store) ClearIdentity() error {
	err := os.Remove(filepath.Join(s.dataDir, identityFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing identity: %w", err)
	}
	return nil
}

type credentials struct {
	Secret string `json:"secret"`
}

// SaveSyncSecret stores the shared sync secret encrypted under the
// operator's passphrase.
func (s *Store) SaveSyncSecret(secret, passphrase string) error {
	enc, err := crypto.NewEncryptor(passphrase)
	if err != nil {
		return err
	}
	sealed, err := enc.Encrypt(secret)
	if err != nil {
		return fmt.Errorf("encrypting sync secret: %w", err)
	}
	raw, err := json.MarshalIndent(credentials{Secret: sealed}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, credentialsFile), raw, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// LoadSyncSecret decrypts the stored sync secret.
func (s *Store) LoadSyncSecret(passphrase string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, credentialsFile))
	if err != nil {
		return "", fmt.Errorf("reading credentials: %w", err)
	}
	var creds credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return "", fmt.Errorf("parsing credentials: %w", err)
	}
	enc, err := crypto.NewEncryptor(passphrase)
	if err != nil {
		return "", err
	}
	return enc.Decrypt(creds.Secret)
}

// NewEventID mints an id for imported events kept alongside an
// existing copy.
func NewEventID() string {
	return uuid.New().String()
}
