package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/controller"
	"github.com/dgnsrekt/shotover_agent/internal/relay"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
	"github.com/dgnsrekt/shotover_agent/internal/tabactivity"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	Status(ctx context.Context, tabID string) (controller.TabStatus, error)
	Track(ctx context.Context, tabID string) (tabactivity.TrackAck, error)
	WaitIdle(ctx context.Context, tabID string, timeout time.Duration) (controller.TabStatus, error)
	PageStatus(ctx context.Context, tabID string) (cdpcontrol.PageStatus, error)
	ActivePage(ctx context.Context, tabID string) (string, error)
	NavigatePage(ctx context.Context, tabID, path string) error

	ExportSettings(ctx context.Context, tabID string) (controller.ExportResult, error)
	ImportSettings(ctx context.Context, tabID string, raw []byte) (controller.ImportResult, error)
	SaveAllPages(ctx context.Context, tabID string) (controller.SaveAllResult, error)
	LoadPage(ctx context.Context, tabID, path string) (controller.ImportResult, error)
	LoadAllPages(ctx context.Context, tabID string) (controller.LoadAllResult, error)

	LoadedConfig() (snapshot.LoadedConfig, error)
	SetLoadedConfig(fileName, content string) (snapshot.LoadedConfig, error)
	ClearLoadedConfig() error
	LoadExport(id string) (snapshot.LoadedConfig, error)
	ListExports() ([]snapshot.ExportMeta, error)
	GetExport(id string) (snapshot.ExportMeta, error)
	ReadExport(id string) ([]byte, snapshot.ExportMeta, error)
	DeleteExport(id string) error
}

type tabIDInput struct {
	TabID string `path:"tab_id" doc:"CDP target id of the Shotover tab. Use \"active\" for the first open tab."`
}

// tabArg maps the "active" alias to the empty id the service resolves to the
// first Shotover tab.
func tabArg(id string) string {
	if id == "active" {
		return ""
	}
	return id
}

// NewServer builds the HTTP API. A nil broker disables the event stream.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig(apiTitle, apiVersion)
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	docs := newDocsPage(broker != nil)
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if err := docs.render(w); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(eventsDocsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if broker != nil {
		router.Get(eventsPath, relay.SSEHandler(broker))
	}

	registerTabHandlers(api, svc)
	registerSettingsHandlers(api, svc)
	registerPageHandlers(api, svc)
	registerConfigHandlers(api, svc)
	registerExportHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound, cdpcontrol.CodeExportNotFound,
			cdpcontrol.CodeSettingNotFound, cdpcontrol.CodeFieldNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeConfigNotLoaded:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeAPIUnavailable, cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
