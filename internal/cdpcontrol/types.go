package cdpcontrol

import (
	"fmt"

	"github.com/chromedp/cdproto/network"
)

const (
	CodeValidation      = "VALIDATION"
	CodeTabNotFound     = "TAB_NOT_FOUND"
	CodeSettingNotFound = "SETTING_NOT_FOUND"
	CodeFieldNotFound   = "FIELD_NOT_FOUND"
	CodeAPIUnavailable  = "API_UNAVAILABLE"
	CodeEvalFailure     = "EVAL_FAILURE"
	CodeEvalTimeout     = "EVAL_TIMEOUT"
	CodeCDPUnavailable  = "CDP_UNAVAILABLE"
	CodeExportNotFound  = "EXPORT_NOT_FOUND"
	CodeConfigNotLoaded = "CONFIG_NOT_LOADED"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// NewError builds a CodedError for callers outside the package.
func NewError(code, msg string, cause error) error {
	return newError(code, msg, cause)
}

// TabInfo describes a browser page target showing the Shotover UI.
type TabInfo struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// TabEventKind enumerates the tab lifecycle and network events the client
// forwards to subscribers.
type TabEventKind string

const (
	EventResponseHeaders TabEventKind = "response_headers"
	EventRequestFinished TabEventKind = "request_finished"
	EventRequestFailed   TabEventKind = "request_failed"
	EventTabRemoved      TabEventKind = "tab_removed"
	EventTabLoading      TabEventKind = "tab_loading"
)

// TabEvent is a decoded CDP event scoped to one tab.
type TabEvent struct {
	Kind         TabEventKind
	TabID        string
	RequestID    string
	ResourceType network.ResourceType
	ContentType  string
}

// PageStatus is what a tab reports about the Shotover UI it shows.
type PageStatus struct {
	URL        string `json:"url"`
	ActivePage string `json:"active_page"`
	HasFields  bool   `json:"has_fields"`
	FieldCount int    `json:"field_count"`
}
