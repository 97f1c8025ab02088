package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/relay"
	"github.com/dgnsrekt/shotover_agent/internal/settings"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
)

// ExportResult is a finished export.
type ExportResult struct {
	ExportID string `json:"export_id,omitempty"`
	TabID    string `json:"tab_id"`
	Page     string `json:"page,omitempty"`
	Count    int    `json:"count"`
	Sections int    `json:"sections"`
	JSON     string `json:"json"`
}

// ExportSettings expands every card on the tab's current page, collects the
// form fields and archives the pretty-printed document.
func (s *Service) ExportSettings(ctx context.Context, tabID string) (ExportResult, error) {
	tab, err := s.resolveTab(ctx, tabID)
	if err != nil {
		return ExportResult{}, err
	}
	doc, sections, err := s.exportDocument(ctx, tab.TabID)
	if err != nil {
		return ExportResult{}, err
	}
	data, err := doc.MarshalIndent()
	if err != nil {
		return ExportResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeEvalFailure, Message: "marshal settings", Cause: err}
	}

	res := ExportResult{TabID: tab.TabID, Page: s.activePage(ctx, tab.TabID), Count: doc.Len(), Sections: sections, JSON: string(data)}
	meta, err := s.archive(snapshot.ExportMeta{TabID: tab.TabID, URL: tab.URL, Page: res.Page, Format: snapshot.FormatFlat, SettingCount: doc.Len()}, data)
	if err != nil {
		return ExportResult{}, err
	}
	res.ExportID = meta.ID
	slog.Info("settings exported", "tab_id", tab.TabID, "page", res.Page, "count", res.Count, "export_id", res.ExportID)
	return res, nil
}

func (s *Service) exportDocument(ctx context.Context, tabID string) (*settings.Document, int, error) {
	sections, err := settings.ExpandAndSettle(ctx, s.cdp.TabPage(tabID), s.opts.SettleDelay)
	if err != nil {
		return nil, 0, err
	}
	elements, err := s.cdp.CollectElements(ctx, tabID)
	if err != nil {
		return nil, 0, err
	}
	return settings.BuildDocument(elements), sections, nil
}

// activePage is best effort: a page without navigation buttons reports "".
func (s *Service) activePage(ctx context.Context, tabID string) string {
	page, err := s.cdp.ActivePage(ctx, tabID)
	if err != nil {
		slog.Debug("active page unavailable", "tab_id", tabID, "error", err)
		return ""
	}
	return page
}

func (s *Service) archive(meta snapshot.ExportMeta, data []byte) (snapshot.ExportMeta, error) {
	if s.snaps == nil {
		return meta, nil
	}
	meta.ID = s.newID()
	meta.CreatedAt = time.Now().UTC()
	saved, err := s.snaps.SaveExport(meta, data)
	if err != nil {
		return snapshot.ExportMeta{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeEvalFailure, Message: "archive export", Cause: err}
	}
	return saved, nil
}

// ImportResult is the outcome of importing one document on one page.
type ImportResult struct {
	TabID  string                   `json:"tab_id"`
	Page   string                   `json:"page,omitempty"`
	Passes []*settings.ImportReport `json:"passes"`
}

// Committed sums committed settings across passes.
func (r ImportResult) Committed() int {
	n := 0
	for _, p := range r.Passes {
		n += p.Committed
	}
	return n
}

// Failed is the failure count of the last pass, the one that decides what
// the page ends up holding.
func (r ImportResult) Failed() int {
	if len(r.Passes) == 0 {
		return 0
	}
	return r.Passes[len(r.Passes)-1].Failed
}

// ImportSettings applies raw settings JSON to the tab's current page once.
// Page-keyed files apply the entry for the active page.
func (s *Service) ImportSettings(ctx context.Context, tabID string, raw []byte) (ImportResult, error) {
	file, err := parseSettings(raw)
	if err != nil {
		return ImportResult{}, err
	}
	tab, err := s.resolveTab(ctx, tabID)
	if err != nil {
		return ImportResult{}, err
	}
	page := s.activePage(ctx, tab.TabID)
	doc, ok := file.Document(page)
	if !ok {
		return ImportResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fmt.Sprintf("settings file has no entry for page %q", page)}
	}
	return s.ImportDocument(ctx, tab.TabID, page, doc, 1)
}

// ImportDocument runs passes import passes of doc on the tab, pausing
// PassDelay between them.
func (s *Service) ImportDocument(ctx context.Context, tabID, page string, doc *settings.Document, passes int) (ImportResult, error) {
	if doc == nil {
		return ImportResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "settings document is required"}
	}
	if passes < 1 {
		passes = 1
	}
	res := ImportResult{TabID: tabID, Page: page}
	tabPage := s.cdp.TabPage(tabID)

	for pass := 1; pass <= passes; pass++ {
		if pass > 1 {
			if err := s.sleep(ctx, s.opts.PassDelay); err != nil {
				return res, err
			}
		}
		if _, err := settings.ExpandAndSettle(ctx, tabPage, s.opts.SettleDelay); err != nil {
			return res, err
		}
		rec := settings.NewReconciler(tabPage, settings.Options{
			Visibility:  s.opts.Visibility,
			DOMFallback: s.opts.DOMFallback,
			SkipRules:   s.opts.SkipRules,
			NewID:       s.newID,
			OnOutcome:   s.journal.Recorder(tabID, page, pass),
		})
		report, err := rec.Apply(ctx, doc)
		if report != nil {
			res.Passes = append(res.Passes, report)
			s.publishImport(tabID, page, pass, report)
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// ImportMessage is published after every import pass.
type ImportMessage struct {
	Type      string `json:"type"`
	TabID     string `json:"tab_id"`
	Page      string `json:"page,omitempty"`
	Pass      int    `json:"pass"`
	Committed int    `json:"committed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

func (s *Service) publishImport(tabID, page string, pass int, r *settings.ImportReport) {
	if s.events == nil {
		return
	}
	s.events.PublishJSON(relay.KindImport, tabID, ImportMessage{
		Type: relay.KindImport, TabID: tabID, Page: page, Pass: pass,
		Committed: r.Committed, Skipped: r.Skipped, Failed: r.Failed,
	})
}

func parseSettings(raw []byte) (*settings.File, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "settings JSON is required"}
	}
	file, err := settings.Parse(raw)
	if err != nil {
		if errors.Is(err, settings.ErrInvalidDocument) {
			return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "invalid settings JSON", Cause: err}
		}
		return nil, err
	}
	return file, nil
}
