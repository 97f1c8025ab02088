package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/netutil"
	"github.com/dgnsrekt/shotover_agent/internal/settings"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
)

const (
	flowSaveAll = "save_all"
	flowLoad    = "load_page"
	flowLoadAll = "load_all"
)

// ActivePage returns the data-resource of the highlighted navigation button.
func (s *Service) ActivePage(ctx context.Context, tabID string) (string, error) {
	tab, err := s.resolveTab(ctx, tabID)
	if err != nil {
		return "", err
	}
	return s.cdp.ActivePage(ctx, tab.TabID)
}

// NavigatePage clicks the navigation button for path and waits for the tab
// to settle.
func (s *Service) NavigatePage(ctx context.Context, tabID, path string) error {
	if err := s.requireNonEmpty(path, "path"); err != nil {
		return err
	}
	tab, err := s.resolveTab(ctx, tabID)
	if err != nil {
		return err
	}
	return s.gotoPage(ctx, tab.TabID, strings.TrimSpace(path))
}

func (s *Service) gotoPage(ctx context.Context, tabID, path string) error {
	if err := s.cdp.NavigatePage(ctx, tabID, path); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.opts.NavDelay); err != nil {
		return err
	}
	if err := s.waitIdle(ctx, tabID, s.opts.IdleTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("tab not idle after navigation, continuing", "tab_id", tabID, "path", path, "error", err)
	}
	return nil
}

// requireLocal refuses tabs that are not on this machine or a private
// network.
func (s *Service) requireLocal(tab cdpcontrol.TabInfo) error {
	if !netutil.IsLocalURL(tab.URL) {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "URL is not local"}
	}
	return nil
}

// SaveAllResult is a finished save-all-pages run.
type SaveAllResult struct {
	ExportID string         `json:"export_id,omitempty"`
	TabID    string         `json:"tab_id"`
	Pages    map[string]int `json:"pages"`
	JSON     string         `json:"json"`
}

// SaveAllPages visits every configured page, exports it and archives the
// page-keyed result.
func (s *Service) SaveAllPages(ctx context.Context, tabID string) (SaveAllResult, error) {
	tab, err := s.resolveTab(ctx, tabID)
	if err != nil {
		return SaveAllResult{}, err
	}
	s.status(tab.TabID, flowSaveAll, "Checking Tab URL...")
	if err := s.requireLocal(tab); err != nil {
		return SaveAllResult{}, err
	}

	all := settings.NewPageDocuments()
	counts := make(map[string]int, len(s.opts.Pages))
	total := 0
	for _, path := range s.opts.Pages {
		if err := ctx.Err(); err != nil {
			return SaveAllResult{}, err
		}
		s.status(tab.TabID, flowSaveAll, "Saving Page: "+path)
		if err := s.gotoPage(ctx, tab.TabID, path); err != nil {
			return SaveAllResult{}, fmt.Errorf("save page %s: %w", path, err)
		}
		doc, _, err := s.exportDocument(ctx, tab.TabID)
		if err != nil {
			return SaveAllResult{}, fmt.Errorf("save page %s: %w", path, err)
		}
		all.Set(path, doc)
		counts[path] = doc.Len()
		total += doc.Len()
	}

	data, err := all.MarshalIndent()
	if err != nil {
		return SaveAllResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeEvalFailure, Message: "marshal pages", Cause: err}
	}
	meta, err := s.archive(snapshot.ExportMeta{TabID: tab.TabID, URL: tab.URL, Format: snapshot.FormatPages, SettingCount: total}, data)
	if err != nil {
		return SaveAllResult{}, err
	}
	s.status(tab.TabID, flowSaveAll, "Done")
	s.notifier.Notify(ctx, "Shotover save all pages", fmt.Sprintf("Saved %d settings across %d pages", total, all.Len()))
	slog.Info("all pages saved", "tab_id", tab.TabID, "pages", all.Len(), "settings", total, "export_id", meta.ID)
	return SaveAllResult{ExportID: meta.ID, TabID: tab.TabID, Pages: counts, JSON: string(data)}, nil
}

// loadedFile reads and parses the loaded settings slot.
func (s *Service) loadedFile() (*settings.File, error) {
	if s.snaps == nil {
		return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeConfigNotLoaded, Message: "No settings loaded"}
	}
	cfg, err := s.snaps.Loaded()
	if err != nil {
		if errors.Is(err, snapshot.ErrNotLoaded) {
			return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeConfigNotLoaded, Message: "No settings loaded"}
		}
		return nil, err
	}
	return parseSettings(cfg.FileContent)
}

// LoadPage navigates to path and imports the loaded settings for it.
func (s *Service) LoadPage(ctx context.Context, tabID, path string) (ImportResult, error) {
	if err := s.requireNonEmpty(path, "path"); err != nil {
		return ImportResult{}, err
	}
	path = strings.TrimSpace(path)
	file, err := s.loadedFile()
	if err != nil {
		return ImportResult{}, err
	}
	tab, err := s.resolveTab(ctx, tabID)
	if err != nil {
		return ImportResult{}, err
	}
	return s.loadPage(ctx, tab, file, path, flowLoad)
}

func (s *Service) loadPage(ctx context.Context, tab cdpcontrol.TabInfo, file *settings.File, path, flow string) (ImportResult, error) {
	s.status(tab.TabID, flow, "Checking Settings: "+path)
	doc, ok := file.Document(path)
	if !ok {
		return ImportResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fmt.Sprintf("loaded settings have no entry for page %q", path)}
	}
	s.status(tab.TabID, flow, "Checking if Host is local...")
	if err := s.requireLocal(tab); err != nil {
		return ImportResult{}, err
	}
	s.status(tab.TabID, flow, "Going to Page: "+path)
	if err := s.gotoPage(ctx, tab.TabID, path); err != nil {
		return ImportResult{}, err
	}
	res, err := s.ImportDocument(ctx, tab.TabID, path, doc, s.opts.ImportPasses)
	if err != nil {
		return res, err
	}
	s.status(tab.TabID, flow, "Wait to send: "+path)
	if err := s.sleep(ctx, s.opts.PassDelay); err != nil {
		return res, err
	}
	return res, nil
}

// LoadAllResult lists the per-page imports of a load-all run in file order.
type LoadAllResult struct {
	TabID string         `json:"tab_id"`
	Pages []ImportResult `json:"pages"`
}

// LoadAllPages loads every page of the loaded page-keyed settings file.
func (s *Service) LoadAllPages(ctx context.Context, tabID string) (LoadAllResult, error) {
	file, err := s.loadedFile()
	if err != nil {
		return LoadAllResult{}, err
	}
	if file.Pages == nil {
		return LoadAllResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "loaded settings are not keyed by page; use load-page or import"}
	}
	tab, err := s.resolveTab(ctx, tabID)
	if err != nil {
		return LoadAllResult{}, err
	}

	out := LoadAllResult{TabID: tab.TabID}
	committed, failed := 0, 0
	for _, path := range file.Pages.Pages() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.loadPage(ctx, tab, file, path, flowLoadAll)
		out.Pages = append(out.Pages, res)
		if err != nil {
			return out, fmt.Errorf("load page %s: %w", path, err)
		}
		committed += res.Committed()
		failed += res.Failed()
	}
	s.status(tab.TabID, flowLoadAll, "Done")
	s.notifier.Notify(ctx, "Shotover load all pages", fmt.Sprintf("Loaded %d pages: %d committed, %d failed", len(out.Pages), committed, failed))
	return out, nil
}
