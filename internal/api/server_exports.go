package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
)

func registerConfigHandlers(api huma.API, svc Service) {
	type loadedOutput struct {
		Body snapshot.LoadedConfig
	}

	huma.Register(api, huma.Operation{OperationID: "get-loaded-config", Method: http.MethodGet, Path: "/api/v1/config", Summary: "Get the loaded settings file", Tags: []string{"Config"}},
		func(ctx context.Context, input *struct{}) (*loadedOutput, error) {
			cfg, err := svc.LoadedConfig()
			if err != nil {
				return nil, mapErr(err)
			}
			return &loadedOutput{Body: cfg}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-loaded-config", Method: http.MethodPut, Path: "/api/v1/config", Summary: "Replace the loaded settings file", Description: "The file name must end in .json and the content must parse as a settings file.", Tags: []string{"Config"}},
		func(ctx context.Context, input *struct {
			Body struct {
				FileName    string `json:"fileName" required:"true" example:"shotover-settings.json"`
				FileContent string `json:"fileContent" required:"true" doc:"Settings file text; stored as a JSON object"`
			}
		}) (*loadedOutput, error) {
			cfg, err := svc.SetLoadedConfig(input.Body.FileName, input.Body.FileContent)
			if err != nil {
				return nil, mapErr(err)
			}
			return &loadedOutput{Body: cfg}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-loaded-config", Method: http.MethodDelete, Path: "/api/v1/config", Summary: "Empty the loaded settings slot", Tags: []string{"Config"}},
		func(ctx context.Context, input *struct{}) (*struct{}, error) {
			if err := svc.ClearLoadedConfig(); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}

func registerExportHandlers(api huma.API, svc Service) {
	type exportIDInput struct {
		ExportID string `path:"export_id"`
	}

	type listExportsOutput struct {
		Body struct {
			Exports []snapshot.ExportMeta `json:"exports"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-exports", Method: http.MethodGet, Path: "/api/v1/exports", Summary: "List archived exports, newest first", Tags: []string{"Exports"}},
		func(ctx context.Context, input *struct{}) (*listExportsOutput, error) {
			metas, err := svc.ListExports()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listExportsOutput{}
			out.Body.Exports = metas
			return out, nil
		})

	type exportMetaOutput struct {
		Body snapshot.ExportMeta
	}

	huma.Register(api, huma.Operation{OperationID: "get-export", Method: http.MethodGet, Path: "/api/v1/exports/{export_id}", Summary: "Get export metadata", Tags: []string{"Exports"}},
		func(ctx context.Context, input *exportIDInput) (*exportMetaOutput, error) {
			meta, err := svc.GetExport(input.ExportID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &exportMetaOutput{Body: meta}, nil
		})

	type exportDocumentOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-export-document",
		Method:      http.MethodGet,
		Path:        "/api/v1/exports/{export_id}/document",
		Summary:     "Download an archived settings document",
		Tags:        []string{"Exports"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Settings JSON",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *exportIDInput) (*exportDocumentOutput, error) {
		data, meta, err := svc.ReadExport(input.ExportID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &exportDocumentOutput{
			ContentType:        "application/json",
			ContentDisposition: `attachment; filename="` + meta.ID + `.json"`,
			Body:               data,
		}, nil
	})

	type loadedOutput struct {
		Body snapshot.LoadedConfig
	}

	huma.Register(api, huma.Operation{OperationID: "load-export", Method: http.MethodPost, Path: "/api/v1/exports/{export_id}/load", Summary: "Copy an archived export into the loaded settings slot", Tags: []string{"Exports"}},
		func(ctx context.Context, input *exportIDInput) (*loadedOutput, error) {
			cfg, err := svc.LoadExport(input.ExportID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &loadedOutput{Body: cfg}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-export", Method: http.MethodDelete, Path: "/api/v1/exports/{export_id}", Summary: "Delete an archived export", Tags: []string{"Exports"}},
		func(ctx context.Context, input *exportIDInput) (*struct{}, error) {
			if err := svc.DeleteExport(input.ExportID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}
