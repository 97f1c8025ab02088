package settings

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// FieldKind is the closed set of reactive field classes the importer knows.
type FieldKind string

const (
	KindSelect FieldKind = "select"
	KindNumber FieldKind = "number"
	KindText   FieldKind = "text"
	KindOther  FieldKind = "other"
)

// Visibility selects how hidden ancestors are detected in the page.
type Visibility string

const (
	VisibilityComputed Visibility = "computed"
	VisibilityInline   Visibility = "inline"
)

// Skip and failure reasons recorded per setting.
const (
	ReasonMissingTarget = "missing target"
	ReasonHidden        = "hidden"
	ReasonMissingField  = "missing field"
	ReasonReadOnly      = "read-only"
	ReasonDisabled      = "disabled"
	ReasonSkipRule      = "skip rule"
	ReasonUnchanged     = "unchanged"
	ReasonInvalidNumber = "invalid number"
	ReasonInspectFailed = "inspect failed"
	ReasonCommitFailed  = "commit failed"
	ReasonDOMWrite      = "dom fallback"
)

// FieldState is what the page reports about the element behind a setting.
type FieldState struct {
	Found       bool      `json:"found"`
	Hidden      bool      `json:"hidden"`
	HasField    bool      `json:"has_field"`
	Kind        FieldKind `json:"kind"`
	ReadOnly    bool      `json:"readonly"`
	Disabled    bool      `json:"disabled"`
	ContainerID string    `json:"container_id"`
	Page        string    `json:"page"`
	Getter      string    `json:"getter"`
	Value       any       `json:"value"`
	Raw         any       `json:"raw"`
}

// CommitRequest is posted to the page bridge as SET_SCS_FIELD.
type CommitRequest struct {
	ID      string          `json:"id"`
	Setting ExportedSetting `json:"setting"`
	Kind    FieldKind       `json:"kind"`
	Value   any             `json:"value"`
}

// CommitAck is the SCS_FIELD_RESULT reply.
type CommitAck struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Value  any    `json:"value"`
	Error  string `json:"error,omitempty"`
}

// CommitOK is the ack status of a successful commit.
const CommitOK = "ok"

// Page is the live document settings are applied to.
type Page interface {
	Inspect(ctx context.Context, s ExportedSetting, mode Visibility) (FieldState, error)
	Commit(ctx context.Context, req CommitRequest) (CommitAck, error)
	WriteDOM(ctx context.Context, s ExportedSetting) error
}

// SkipRule excludes fields whose container id contains ContainerContains
// while Page is the active page. An empty Page matches every page.
type SkipRule struct {
	ContainerContains string `yaml:"container_contains" json:"container_contains"`
	Page              string `yaml:"page" json:"page"`
}

func (r SkipRule) Matches(containerID, page string) bool {
	if r.ContainerContains == "" || !strings.Contains(containerID, r.ContainerContains) {
		return false
	}
	return r.Page == "" || strings.EqualFold(r.Page, page)
}

// DefaultSkipRules holds the lens map cluster on /lens.
func DefaultSkipRules() []SkipRule {
	return []SkipRule{{ContainerContains: "field_5", Page: "/lens"}}
}

// Options tune the importer.
type Options struct {
	Visibility  Visibility
	DOMFallback bool
	SkipRules   []SkipRule
	// NewID returns bridge correlation ids.
	NewID func() string
	// OnOutcome observes every per-setting result.
	OnOutcome func(Outcome)
}

// Action is the planned write for one setting.
type Action string

const (
	ActionSkip   Action = "skip"
	ActionCommit Action = "commit"
	ActionDOM    Action = "dom"
	ActionFail   Action = "fail"
)

// Decision is the outcome of Plan.
type Decision struct {
	Action Action
	Reason string
	Value  any
}

// Plan decides how a setting is written given the page's report on it.
func Plan(s ExportedSetting, st FieldState, opts Options) Decision {
	if !st.Found {
		return Decision{Action: ActionSkip, Reason: ReasonMissingTarget}
	}
	if st.Hidden {
		return Decision{Action: ActionSkip, Reason: ReasonHidden}
	}
	if !st.HasField {
		if opts.DOMFallback {
			return Decision{Action: ActionDOM, Reason: ReasonDOMWrite, Value: s.Value.Any()}
		}
		return Decision{Action: ActionSkip, Reason: ReasonMissingField}
	}
	if st.ReadOnly {
		return Decision{Action: ActionSkip, Reason: ReasonReadOnly}
	}
	if st.Disabled {
		return Decision{Action: ActionSkip, Reason: ReasonDisabled}
	}
	for _, rule := range opts.SkipRules {
		if rule.Matches(st.ContainerID, st.Page) {
			return Decision{Action: ActionSkip, Reason: fmt.Sprintf("%s: %s on %s", ReasonSkipRule, st.ContainerID, st.Page)}
		}
	}

	if st.Kind == KindNumber {
		imported, ok := s.Value.Float()
		if !ok {
			return Decision{Action: ActionFail, Reason: ReasonInvalidNumber}
		}
		target := imported / NumberFactor(st)
		if cur, ok := toFloat(st.Value); ok && floatEqual(cur, target) {
			return Decision{Action: ActionSkip, Reason: ReasonUnchanged}
		}
		return Decision{Action: ActionCommit, Value: target}
	}

	if valueEquals(st.Kind, st.Value, s.Value) {
		return Decision{Action: ActionSkip, Reason: ReasonUnchanged}
	}
	return Decision{Action: ActionCommit, Value: s.Value.Any()}
}

// NumberFactor is the ratio between a number field's displayed form (raw)
// and its underlying value. A zero or unreadable value yields 100 for
// percentage getters and 1 otherwise.
func NumberFactor(st FieldState) float64 {
	if value, ok := toFloat(st.Value); ok && value != 0 {
		if raw, ok := toFloat(st.Raw); ok {
			if f := raw / value; f != 0 && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return f
			}
		}
		return 1
	}
	if looksLikePercent(st.Getter) {
		return 100
	}
	return 1
}

func looksLikePercent(getter string) bool {
	g := strings.ToLower(getter)
	return strings.Contains(g, "percent") || strings.Contains(g, "pct") || strings.Contains(g, "%")
}

func valueEquals(kind FieldKind, current any, requested Value) bool {
	switch cur := current.(type) {
	case nil:
		return kind == KindSelect && !requested.IsBool() && strings.Contains(requested.String(), "...")
	case bool:
		if requested.IsBool() {
			return cur == requested.Bool()
		}
		b, err := strconv.ParseBool(requested.String())
		return err == nil && b == cur
	case string:
		if cur == requested.String() {
			return true
		}
		a, aok := toFloat(cur)
		b, bok := requested.Float()
		return aok && bok && floatEqual(a, b)
	default:
		a, aok := toFloat(cur)
		b, bok := requested.Float()
		return aok && bok && floatEqual(a, b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func floatEqual(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff < 1e-9 {
		return true
	}
	return diff <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

// Outcome status values.
const (
	StatusCommitted = "committed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Outcome is the result of applying one setting.
type Outcome struct {
	Key      string `json:"key"`
	Selector string `json:"selector"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// ImportReport summarises an import pass.
type ImportReport struct {
	Outcomes  []Outcome `json:"outcomes"`
	Committed int       `json:"committed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
}

func (r *ImportReport) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusCommitted:
		r.Committed++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

// Reconciler applies settings documents to a page one setting at a time.
type Reconciler struct {
	page Page
	opts Options
}

func NewReconciler(page Page, opts Options) *Reconciler {
	if opts.Visibility == "" {
		opts.Visibility = VisibilityComputed
	}
	if opts.NewID == nil {
		var n int
		opts.NewID = func() string {
			n++
			return "commit-" + strconv.Itoa(n)
		}
	}
	return &Reconciler{page: page, opts: opts}
}

// Apply writes every setting in doc order. Per-setting failures land in the
// report; only context cancellation stops the pass early.
func (r *Reconciler) Apply(ctx context.Context, doc *Document) (*ImportReport, error) {
	report := &ImportReport{Outcomes: make([]Outcome, 0, doc.Len())}
	for _, e := range doc.Entries() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		o := r.applyOne(ctx, e)
		report.add(o)
		if r.opts.OnOutcome != nil {
			r.opts.OnOutcome(o)
		}
	}
	slog.Info("settings import pass done",
		"settings", doc.Len(), "committed", report.Committed, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func (r *Reconciler) applyOne(ctx context.Context, e Entry) Outcome {
	o := Outcome{Key: e.Key, Selector: e.Setting.Selector}
	st, err := r.page.Inspect(ctx, e.Setting, r.opts.Visibility)
	if err != nil {
		slog.Warn("settings inspect failed", "key", e.Key, "selector", e.Setting.Selector, "error", err)
		o.Status, o.Reason = StatusFailed, fmt.Sprintf("%s: %v", ReasonInspectFailed, err)
		return o
	}

	d := Plan(e.Setting, st, r.opts)
	switch d.Action {
	case ActionSkip:
		if d.Reason == ReasonMissingTarget || d.Reason == ReasonMissingField {
			slog.Warn("settings setting skipped", "key", e.Key, "selector", e.Setting.Selector, "reason", d.Reason)
		} else {
			slog.Debug("settings setting skipped", "key", e.Key, "reason", d.Reason)
		}
		o.Status, o.Reason = StatusSkipped, d.Reason
	case ActionFail:
		slog.Warn("settings setting rejected", "key", e.Key, "reason", d.Reason)
		o.Status, o.Reason = StatusFailed, d.Reason
	case ActionDOM:
		if err := r.page.WriteDOM(ctx, e.Setting); err != nil {
			slog.Warn("settings dom write failed", "key", e.Key, "error", err)
			o.Status, o.Reason = StatusFailed, fmt.Sprintf("%s: %v", ReasonCommitFailed, err)
			return o
		}
		o.Status, o.Reason, o.Value = StatusCommitted, ReasonDOMWrite, d.Value
	case ActionCommit:
		req := CommitRequest{ID: r.opts.NewID(), Setting: e.Setting, Kind: st.Kind, Value: d.Value}
		ack, err := r.page.Commit(ctx, req)
		if err == nil && ack.Status != CommitOK {
			err = fmt.Errorf("status %q: %s", ack.Status, ack.Error)
		}
		if err == nil && ack.ID != req.ID {
			err = fmt.Errorf("ack id %q does not match %q", ack.ID, req.ID)
		}
		if err != nil {
			slog.Warn("settings commit failed", "key", e.Key, "commit_id", req.ID, "error", err)
			o.Status, o.Reason = StatusFailed, fmt.Sprintf("%s: %v", ReasonCommitFailed, err)
			return o
		}
		slog.Debug("settings committed", "key", e.Key, "kind", st.Kind, "commit_id", req.ID)
		o.Status, o.Value = StatusCommitted, ack.Value
	}
	return o
}
