package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/shotover_agent/internal/controller"
)

func registerSettingsHandlers(api huma.API, svc Service) {
	type exportOutput struct {
		Body controller.ExportResult
	}

	huma.Register(api, huma.Operation{OperationID: "export-settings", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/settings/export", Summary: "Export the settings of the tab's current page", Description: "Expands every card, collects the form fields and archives the document. The response carries the pretty-printed JSON.", Tags: []string{"Settings"}},
		func(ctx context.Context, input *tabIDInput) (*exportOutput, error) {
			res, err := svc.ExportSettings(ctx, tabArg(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &exportOutput{Body: res}, nil
		})

	type importOutput struct {
		Body controller.ImportResult
	}

	huma.Register(api, huma.Operation{OperationID: "import-settings", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/settings/import", Summary: "Import settings into the tab's current page", Description: "Applies a flat settings document, or the active page's entry of a page-keyed one, in a single pass.", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			TabID string `path:"tab_id"`
			Body  struct {
				JSON string `json:"json" required:"true" doc:"Settings file content"`
			}
		}) (*importOutput, error) {
			res, err := svc.ImportSettings(ctx, tabArg(input.TabID), []byte(input.Body.JSON))
			if err != nil {
				return nil, mapErr(err)
			}
			return &importOutput{Body: res}, nil
		})
}
