package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/shotover_agent/internal/controller"
)

func registerPageHandlers(api huma.API, svc Service) {
	type navigateOutput struct {
		Body struct {
			TabID  string `json:"tab_id"`
			Path   string `json:"path"`
			Status string `json:"status"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "navigate-page", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/pages/navigate", Summary: "Click the navigation button of a page", Tags: []string{"Pages"}},
		func(ctx context.Context, input *struct {
			TabID string `path:"tab_id"`
			Body  struct {
				Path string `json:"path" required:"true" doc:"data-resource of the navigation button" example:"/cameras"`
			}
		}) (*navigateOutput, error) {
			if err := svc.NavigatePage(ctx, tabArg(input.TabID), input.Body.Path); err != nil {
				return nil, mapErr(err)
			}
			out := &navigateOutput{}
			out.Body.TabID = input.TabID
			out.Body.Path = input.Body.Path
			out.Body.Status = "navigated"
			return out, nil
		})

	type activePageOutput struct {
		Body struct {
			TabID string `json:"tab_id"`
			Path  string `json:"path"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "get-active-page", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/pages/active", Summary: "data-resource of the highlighted navigation button", Tags: []string{"Pages"}},
		func(ctx context.Context, input *tabIDInput) (*activePageOutput, error) {
			path, err := svc.ActivePage(ctx, tabArg(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &activePageOutput{}
			out.Body.TabID = input.TabID
			out.Body.Path = path
			return out, nil
		})

	type saveAllOutput struct {
		Body controller.SaveAllResult
	}

	huma.Register(api, huma.Operation{OperationID: "save-all-pages", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/pages/save-all", Summary: "Export every configured page into one page-keyed document", Description: "Refused unless the tab is on a local or private-network URL. Progress is published as status events.", Tags: []string{"Pages"}},
		func(ctx context.Context, input *tabIDInput) (*saveAllOutput, error) {
			res, err := svc.SaveAllPages(ctx, tabArg(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &saveAllOutput{Body: res}, nil
		})

	type importOutput struct {
		Body controller.ImportResult
	}

	huma.Register(api, huma.Operation{OperationID: "load-page", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/pages/load", Summary: "Navigate to a page and import the loaded settings for it", Tags: []string{"Pages"}},
		func(ctx context.Context, input *struct {
			TabID string `path:"tab_id"`
			Body  struct {
				Path string `json:"path" required:"true" doc:"Page to load" example:"/cameras"`
			}
		}) (*importOutput, error) {
			res, err := svc.LoadPage(ctx, tabArg(input.TabID), input.Body.Path)
			if err != nil {
				return nil, mapErr(err)
			}
			return &importOutput{Body: res}, nil
		})

	type loadAllOutput struct {
		Body controller.LoadAllResult
	}

	huma.Register(api, huma.Operation{OperationID: "load-all-pages", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/pages/load-all", Summary: "Import every page of the loaded page-keyed settings", Tags: []string{"Pages"}},
		func(ctx context.Context, input *tabIDInput) (*loadAllOutput, error) {
			res, err := svc.LoadAllPages(ctx, tabArg(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &loadAllOutput{Body: res}, nil
		})
}
