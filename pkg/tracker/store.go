package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starlink-awaken/omo-quota/pkg/model"
)

// ErrSave marks a failure to persist the tracker document.
var ErrSave = errors.New("save tracker")

// LoadResult is the outcome of Store.Load. Doc is always usable; Diagnostic is
// set when an existing file could not be read and defaults were substituted.
type LoadResult struct {
	Doc        *TrackerDocument
	Existed    bool
	Diagnostic error
}

// Corrupt reports whether the tracker file existed but could not be used.
func (r LoadResult) Corrupt() bool {
	return r.Diagnostic != nil
}

// Store reads and writes the tracker document at a single path.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the tracker file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the tracker file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the tracker document. A missing file yields the default document.
// An unreadable or unparseable file also yields the default document, with the
// problem logged and returned as the diagnostic.
func (s *Store) Load() LoadResult {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return LoadResult{Doc: model.NewTrackerDocument()}
		}
		return s.corrupt(fmt.Errorf("read tracker %s: %w", s.path, err))
	}

	var wire struct {
		Providers       map[string]json.RawMessage `json:"providers"`
		CurrentStrategy string                     `json:"currentStrategy"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return s.corrupt(fmt.Errorf("decode tracker %s: %w", s.path, err))
	}

	doc := model.NewTrackerDocument()
	if wire.CurrentStrategy != "" {
		doc.CurrentStrategy = wire.CurrentStrategy
	}
	for id, raw := range wire.Providers {
		var status ProviderStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			s.logger.Warn("provider entry unreadable, keeping it as is", "path", s.path, "provider", id, "error", err)
			if doc.Malformed == nil {
				doc.Malformed = make(map[string]MalformedEntry)
			}
			doc.Malformed[id] = MalformedEntry{Raw: raw, Err: err}
			continue
		}
		doc.Providers[id] = status
	}
	return LoadResult{Doc: doc, Existed: true}
}

func (s *Store) corrupt(err error) LoadResult {
	s.logger.Warn("tracker state unusable, using defaults", "path", s.path, "error", err)
	return LoadResult{Doc: model.NewTrackerDocument(), Existed: true, Diagnostic: err}
}

// Save writes doc with two-space indentation. The file is replaced by rename so
// readers never observe a partial write.
func (s *Store) Save(doc *TrackerDocument) error {
	if err := s.save(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	s.logger.Debug("tracker saved", "path", s.path, "providers", len(doc.Providers))
	return nil
}

func (s *Store) save(doc *TrackerDocument) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tracker dir %s: %w", dir, err)
	}

	payload, err := json.MarshalIndent(encodeDocument(doc), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracker: %w", err)
	}
	payload = append(payload, '\n')

	tmpFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp tracker file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(payload); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp tracker file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("sync temp tracker file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp tracker file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp tracker file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace tracker file %s: %w", s.path, err)
	}
	return nil
}

// encodeDocument merges decoded and malformed provider entries into the wire
// shape. A decoded entry wins over a malformed one with the same id.
func encodeDocument(doc *TrackerDocument) any {
	providers := make(map[string]any, len(doc.Providers)+len(doc.Malformed))
	for id, m := range doc.Malformed {
		providers[id] = m.Raw
	}
	for id, status := range doc.Providers {
		providers[id] = status
	}
	return struct {
		Providers       map[string]any `json:"providers"`
		CurrentStrategy string         `json:"currentStrategy"`
	}{providers, doc.CurrentStrategy}
}
