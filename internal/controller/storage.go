package controller

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
)

func (s *Service) requireStore() error {
	if s.snaps == nil {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeAPIUnavailable, Message: "settings store is not configured"}
	}
	return nil
}

// LoadedConfig returns the settings file in the loaded slot.
func (s *Service) LoadedConfig() (snapshot.LoadedConfig, error) {
	if err := s.requireStore(); err != nil {
		return snapshot.LoadedConfig{}, err
	}
	cfg, err := s.snaps.Loaded()
	if err != nil {
		if errors.Is(err, snapshot.ErrNotLoaded) {
			return snapshot.LoadedConfig{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeConfigNotLoaded, Message: "No settings loaded"}
		}
		return snapshot.LoadedConfig{}, err
	}
	return cfg, nil
}

// SetLoadedConfig validates content as a settings file and stores it in the
// loaded slot.
func (s *Service) SetLoadedConfig(fileName, content string) (snapshot.LoadedConfig, error) {
	if err := s.requireStore(); err != nil {
		return snapshot.LoadedConfig{}, err
	}
	if err := s.requireNonEmpty(fileName, "file_name"); err != nil {
		return snapshot.LoadedConfig{}, err
	}
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(fileName)), ".json") {
		return snapshot.LoadedConfig{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "Please select a JSON file"}
	}
	if _, err := parseSettings([]byte(content)); err != nil {
		return snapshot.LoadedConfig{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "Invalid JSON file", Cause: err}
	}
	cfg := snapshot.LoadedConfig{FileName: strings.TrimSpace(fileName), FileContent: json.RawMessage(content)}
	if err := s.snaps.SetLoaded(cfg); err != nil {
		return snapshot.LoadedConfig{}, err
	}
	return cfg, nil
}

// ClearLoadedConfig empties the loaded slot.
func (s *Service) ClearLoadedConfig() error {
	if err := s.requireStore(); err != nil {
		return err
	}
	return s.snaps.ClearLoaded()
}

// LoadExport copies an archived export into the loaded slot.
func (s *Service) LoadExport(id string) (snapshot.LoadedConfig, error) {
	data, meta, err := s.ReadExport(id)
	if err != nil {
		return snapshot.LoadedConfig{}, err
	}
	return s.SetLoadedConfig(meta.ID+".json", string(data))
}

func (s *Service) ListExports() ([]snapshot.ExportMeta, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	return s.snaps.List()
}

func (s *Service) GetExport(id string) (snapshot.ExportMeta, error) {
	if err := s.requireNonEmpty(id, "export_id"); err != nil {
		return snapshot.ExportMeta{}, err
	}
	if err := s.requireStore(); err != nil {
		return snapshot.ExportMeta{}, err
	}
	meta, err := s.snaps.Get(strings.TrimSpace(id))
	return meta, exportErr(id, err)
}

// ReadExport returns the archived document and its metadata.
func (s *Service) ReadExport(id string) ([]byte, snapshot.ExportMeta, error) {
	if err := s.requireNonEmpty(id, "export_id"); err != nil {
		return nil, snapshot.ExportMeta{}, err
	}
	if err := s.requireStore(); err != nil {
		return nil, snapshot.ExportMeta{}, err
	}
	data, meta, err := s.snaps.ReadDocument(strings.TrimSpace(id))
	return data, meta, exportErr(id, err)
}

func (s *Service) DeleteExport(id string) error {
	if err := s.requireNonEmpty(id, "export_id"); err != nil {
		return err
	}
	if err := s.requireStore(); err != nil {
		return err
	}
	return exportErr(id, s.snaps.Delete(strings.TrimSpace(id)))
}

func exportErr(id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, snapshot.ErrNotFound) {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeExportNotFound, Message: "export not found: " + id, Cause: err}
	}
	if errors.Is(err, snapshot.ErrInvalidID) {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: err.Error()}
	}
	return err
}
