// Package snapshot persists the loaded settings file slot and an archive of
// exported settings documents on disk.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LoadedConfigSlot is the storage key of the single loaded settings file.
const LoadedConfigSlot = "shotoverLoadedConfigFile"

// Export formats.
const (
	FormatFlat  = "flat"
	FormatPages = "pages"
)

var (
	ErrNotFound  = errors.New("snapshot: not found")
	ErrNotLoaded = errors.New("snapshot: no settings loaded")
	ErrInvalidID = errors.New("invalid export id")
)

// LoadedConfig is the settings file a user picked for later imports.
// FileContent holds the settings mapping itself, so the slot stores an
// object rather than the file text.
type LoadedConfig struct {
	FileName    string          `json:"fileName"`
	FileContent json.RawMessage `json:"fileContent"`
}

// Empty reports whether the slot carries no settings mapping.
func (c LoadedConfig) Empty() bool {
	content := bytes.TrimSpace(c.FileContent)
	return len(content) == 0 || bytes.Equal(content, []byte("null"))
}

// ExportMeta describes an archived export.
type ExportMeta struct {
	ID           string    `json:"id"`
	TabID        string    `json:"tab_id,omitempty"`
	URL          string    `json:"url,omitempty"`
	Page         string    `json:"page,omitempty"`
	Format       string    `json:"format"`
	SettingCount int       `json:"setting_count"`
	SizeBytes    int       `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	Notes        string    `json:"notes,omitempty"`
}

// Store manages the slot file and the exports directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store rooted at dir and ensures the layout exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "exports"), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) slotPath() string {
	return filepath.Join(s.dir, LoadedConfigSlot+".json")
}

func (s *Store) exportPath(id, ext string) string {
	return filepath.Join(s.dir, "exports", id+ext)
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// SetLoaded replaces the loaded settings file.
func (s *Store) SetLoaded(cfg LoadedConfig) error {
	if !cfg.Empty() && !json.Valid(cfg.FileContent) {
		return fmt.Errorf("snapshot store: slot content for %s is not valid JSON", cfg.FileName)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot store: marshal slot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.slotPath(), data); err != nil {
		return fmt.Errorf("snapshot store: write slot: %w", err)
	}
	slog.Info("snapshot loaded config stored", "file_name", cfg.FileName, "size_bytes", len(cfg.FileContent))
	return nil
}

// Loaded returns the loaded settings file, or ErrNotLoaded when the slot is
// empty.
func (s *Store) Loaded() (LoadedConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.slotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return LoadedConfig{}, ErrNotLoaded
		}
		return LoadedConfig{}, fmt.Errorf("snapshot store: read slot: %w", err)
	}
	var cfg LoadedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return LoadedConfig{}, fmt.Errorf("snapshot store: unmarshal slot: %w", err)
	}
	if cfg.Empty() {
		return LoadedConfig{}, ErrNotLoaded
	}
	return cfg, nil
}

// ClearLoaded empties the slot.
func (s *Store) ClearLoaded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.slotPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot store: clear slot: %w", err)
	}
	return nil
}

// SaveExport writes the document and its metadata sidecar. A missing ID or
// CreatedAt is filled in; the stored meta is returned.
func (s *Store) SaveExport(meta ExportMeta, doc []byte) (ExportMeta, error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if err := validateID(meta.ID); err != nil {
		return ExportMeta{}, err
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if meta.Format == "" {
		meta.Format = FormatFlat
	}
	meta.SizeBytes = len(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	docPath := s.exportPath(meta.ID, ".settings.json")
	metaPath := s.exportPath(meta.ID, ".meta.json")

	if err := os.WriteFile(docPath, doc, 0o644); err != nil {
		return ExportMeta{}, fmt.Errorf("snapshot store: write export: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(docPath)
		return ExportMeta{}, fmt.Errorf("snapshot store: marshal meta: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		_ = os.Remove(docPath)
		return ExportMeta{}, fmt.Errorf("snapshot store: write meta: %w", err)
	}
	return meta, nil
}

// Get reads export metadata by ID.
func (s *Store) Get(id string) (ExportMeta, error) {
	if err := validateID(id); err != nil {
		return ExportMeta{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(s.exportPath(id, ".meta.json"), id)
}

func (s *Store) readMeta(path, id string) (ExportMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ExportMeta{}, fmt.Errorf("%w: export %s", ErrNotFound, id)
		}
		return ExportMeta{}, fmt.Errorf("snapshot store: read meta: %w", err)
	}
	var meta ExportMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return ExportMeta{}, fmt.Errorf("snapshot store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns all exports sorted by creation time, newest first.
func (s *Store) List() ([]ExportMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(s.exportPath("*", ".meta.json"))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: glob: %w", err)
	}
	metas := make([]ExportMeta, 0, len(matches))
	for _, path := range matches {
		meta, err := s.readMeta(path, filepath.Base(path))
		if err != nil {
			slog.Debug("snapshot skipping unreadable meta", "path", path, "error", err)
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadDocument returns the archived settings JSON.
func (s *Store) ReadDocument(id string) ([]byte, ExportMeta, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, ExportMeta{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.exportPath(id, ".settings.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ExportMeta{}, fmt.Errorf("%w: export document %s", ErrNotFound, id)
		}
		return nil, ExportMeta{}, fmt.Errorf("snapshot store: read export: %w", err)
	}
	return data, meta, nil
}

// Delete removes an export and its sidecar.
func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.exportPath(id, ".settings.json")); err != nil {
		slog.Debug("snapshot export cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(s.exportPath(id, ".meta.json")); err != nil {
		return fmt.Errorf("snapshot store: remove meta: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
