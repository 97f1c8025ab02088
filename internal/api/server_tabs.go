package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/controller"
	"github.com/dgnsrekt/shotover_agent/internal/tabactivity"
)

func registerTabHandlers(api huma.API, svc Service) {
	type listTabsOutput struct {
		Body struct {
			Tabs []cdpcontrol.TabInfo `json:"tabs"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List open Shotover tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*listTabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listTabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	type statusOutput struct {
		Body controller.TabStatus
	}

	huma.Register(api, huma.Operation{OperationID: "get-tab-status", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/status", Summary: "Pending HTML request count of a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
			st, err := svc.Status(ctx, tabArg(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &statusOutput{Body: st}, nil
		})

	type trackOutput struct {
		Body tabactivity.TrackAck
	}

	huma.Register(api, huma.Operation{OperationID: "track-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/track", Summary: "Start tracking a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*trackOutput, error) {
			ack, err := svc.Track(ctx, tabArg(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &trackOutput{Body: ack}, nil
		})

	type waitIdleOutput struct {
		Body struct {
			controller.TabStatus
			Idle bool `json:"idle"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "wait-tab-idle", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/wait-idle", Summary: "Block until the tab has no pending HTML requests", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID string `path:"tab_id" doc:"CDP target id of the Shotover tab. Use \"active\" for the first open tab."`
			Body  struct {
				TimeoutMS int `json:"timeout_ms,omitempty" doc:"Give up after this many milliseconds (0 uses the configured idle timeout)" minimum:"0" maximum:"300000"`
			}
		}) (*waitIdleOutput, error) {
			timeout := time.Duration(input.Body.TimeoutMS) * time.Millisecond
			st, err := svc.WaitIdle(ctx, tabArg(input.TabID), timeout)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &waitIdleOutput{}
			out.Body.TabStatus = st
			out.Body.Idle = true
			return out, nil
		})

	type pageStatusOutput struct {
		Body cdpcontrol.PageStatus
	}

	huma.Register(api, huma.Operation{OperationID: "get-page-status", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/page", Summary: "URL, active page and field count of a tab", Tags: []string{"Pages"}},
		func(ctx context.Context, input *tabIDInput) (*pageStatusOutput, error) {
			st, err := svc.PageStatus(ctx, tabArg(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &pageStatusOutput{Body: st}, nil
		})
}
