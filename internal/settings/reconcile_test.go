package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeField struct {
	state    FieldState
	commits  int
	domWrite int
}

type fakePage struct {
	fields     map[string]*fakeField
	commitErr  error
	inspectErr map[string]error
	requests   []CommitRequest
}

func (p *fakePage) Inspect(_ context.Context, s ExportedSetting, _ Visibility) (FieldState, error) {
	if err := p.inspectErr[s.Selector]; err != nil {
		return FieldState{}, err
	}
	f, ok := p.fields[s.Selector]
	if !ok {
		return FieldState{}, nil
	}
	return f.state, nil
}

func (p *fakePage) Commit(_ context.Context, req CommitRequest) (CommitAck, error) {
	p.requests = append(p.requests, req)
	if p.commitErr != nil {
		return CommitAck{}, p.commitErr
	}
	f := p.fields[req.Setting.Selector]
	f.commits++
	f.state.Value = req.Value
	return CommitAck{ID: req.ID, Status: CommitOK, Value: req.Value}, nil
}

func (p *fakePage) WriteDOM(_ context.Context, s ExportedSetting) error {
	p.fields[s.Selector].domWrite++
	return nil
}

func visibleField(kind FieldKind, value any) *fakeField {
	return &fakeField{state: FieldState{Found: true, HasField: true, Kind: kind, Value: value, Page: "/network"}}
}

func docOf(entries ...Entry) *Document {
	doc := NewDocument()
	for _, e := range entries {
		doc.Set(e.Key, e.Setting)
	}
	return doc
}

func TestCheckboxRoundTripCommitsOnce(t *testing.T) {
	exported := BuildDocument([]ElementFacts{{Tag: "INPUT", ID: "enable", TypeAttr: "checkbox", Checked: true}})
	raw, err := exported.MarshalIndent()
	require.NoError(t, err)
	doc, err := ParseDocument(raw)
	require.NoError(t, err)

	page := &fakePage{fields: map[string]*fakeField{"#enable": visibleField(KindOther, false)}}
	r := NewReconciler(page, Options{})

	first, err := r.Apply(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Committed)
	assert.Equal(t, true, page.fields["#enable"].state.Value)

	second, err := r.Apply(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Committed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, ReasonUnchanged, second.Outcomes[0].Reason)
	assert.Equal(t, 1, page.fields["#enable"].commits)
}

func TestNumberFieldScalesByFactor(t *testing.T) {
	field := visibleField(KindNumber, 0.5)
	field.state.Raw = "50"
	page := &fakePage{fields: map[string]*fakeField{"#zoom": field}}
	doc := docOf(Entry{Key: "zoom", Setting: ExportedSetting{Selector: "#zoom", Type: "number", Value: StringValue("75")}})

	report, err := NewReconciler(page, Options{}).Apply(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, 1, report.Committed)
	require.Len(t, page.requests, 1)
	assert.InDelta(t, 0.75, page.requests[0].Value.(float64), 1e-12)
	assert.Equal(t, KindNumber, page.requests[0].Kind)
}

func TestNumberFactorDefaults(t *testing.T) {
	assert.Equal(t, 1.0, NumberFactor(FieldState{Value: 0.0, Raw: "0"}))
	assert.Equal(t, 100.0, NumberFactor(FieldState{Value: 0.0, Raw: "0", Getter: "get_percent"}))
	assert.Equal(t, 100.0, NumberFactor(FieldState{Value: nil, Getter: "speedPct"}))
	assert.Equal(t, 1.0, NumberFactor(FieldState{Value: 3.0, Raw: nil}))
	assert.InDelta(t, 10.0, NumberFactor(FieldState{Value: "2", Raw: "20"}), 1e-12)
}

func TestHiddenFieldNeverCommitted(t *testing.T) {
	field := visibleField(KindText, "old")
	field.state.Hidden = true
	page := &fakePage{fields: map[string]*fakeField{"#motor": field}}
	doc := docOf(Entry{Key: "motor", Setting: ExportedSetting{Selector: "#motor", Type: "text", Value: StringValue("new")}})

	report, err := NewReconciler(page, Options{DOMFallback: true}).Apply(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 0, field.commits)
	assert.Equal(t, 0, field.domWrite)
	assert.Equal(t, ReasonHidden, report.Outcomes[0].Reason)
}

func TestMissingTargetDoesNotStopBatch(t *testing.T) {
	page := &fakePage{
		fields:     map[string]*fakeField{"#b": visibleField(KindText, "x"), "#d": visibleField(KindText, "x")},
		inspectErr: map[string]error{"#c": errors.New("eval failed")},
	}
	doc := docOf(
		Entry{Key: "a", Setting: ExportedSetting{Selector: "#gone", Type: "text", Value: StringValue("1")}},
		Entry{Key: "b", Setting: ExportedSetting{Selector: "#b", Type: "text", Value: StringValue("2")}},
		Entry{Key: "c", Setting: ExportedSetting{Selector: "#c", Type: "text", Value: StringValue("3")}},
		Entry{Key: "d", Setting: ExportedSetting{Selector: "#d", Type: "text", Value: StringValue("4")}},
	)

	var seen []string
	report, err := NewReconciler(page, Options{OnOutcome: func(o Outcome) { seen = append(seen, o.Key) }}).
		Apply(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
	assert.Equal(t, 2, report.Committed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, ReasonMissingTarget, report.Outcomes[0].Reason)
}

func TestGuardsAndSkipRules(t *testing.T) {
	setting := ExportedSetting{Selector: "#f", Type: "text", Value: StringValue("v")}
	opts := Options{SkipRules: DefaultSkipRules()}

	ro := FieldState{Found: true, HasField: true, Kind: KindText, ReadOnly: true}
	assert.Equal(t, ReasonReadOnly, Plan(setting, ro, opts).Reason)

	dis := FieldState{Found: true, HasField: true, Kind: KindText, Disabled: true}
	assert.Equal(t, ReasonDisabled, Plan(setting, dis, opts).Reason)

	lens := FieldState{Found: true, HasField: true, Kind: KindText, ContainerID: "card_field_5_map", Page: "/LENS"}
	d := Plan(setting, lens, opts)
	assert.Equal(t, ActionSkip, d.Action)
	assert.Contains(t, d.Reason, ReasonSkipRule)

	lens.Page = "/gimbal"
	assert.Equal(t, ActionCommit, Plan(setting, lens, opts).Action)

	missing := FieldState{Found: true}
	assert.Equal(t, ReasonMissingField, Plan(setting, missing, Options{}).Reason)
	assert.Equal(t, ActionDOM, Plan(setting, missing, Options{DOMFallback: true}).Action)
}

func TestSelectPlaceholderMatchesNull(t *testing.T) {
	st := FieldState{Found: true, HasField: true, Kind: KindSelect, Value: nil}
	placeholder := ExportedSetting{Selector: "#s", Type: "select-one", Value: StringValue("Select...")}
	assert.Equal(t, ActionSkip, Plan(placeholder, st, Options{}).Action)

	wide := ExportedSetting{Selector: "#s", Type: "select-one", Value: StringValue("wide")}
	assert.Equal(t, ActionCommit, Plan(wide, st, Options{}).Action)
}

func TestNumericStringsCompareByValue(t *testing.T) {
	st := FieldState{Found: true, HasField: true, Kind: KindText, Value: "1.50"}
	s := ExportedSetting{Selector: "#t", Type: "text", Value: StringValue("1.5")}
	assert.Equal(t, ReasonUnchanged, Plan(s, st, Options{}).Reason)
}

func TestInvalidNumberFails(t *testing.T) {
	st := FieldState{Found: true, HasField: true, Kind: KindNumber, Value: 1.0, Raw: "1"}
	s := ExportedSetting{Selector: "#n", Type: "number", Value: StringValue("fast")}
	assert.Equal(t, ActionFail, Plan(s, st, Options{}).Action)
}

func TestCommitFailureRecorded(t *testing.T) {
	page := &fakePage{
		fields:    map[string]*fakeField{"#a": visibleField(KindText, "x")},
		commitErr: errors.New("bridge closed"),
	}
	doc := docOf(Entry{Key: "a", Setting: ExportedSetting{Selector: "#a", Type: "text", Value: StringValue("y")}})
	report, err := NewReconciler(page, Options{NewID: func() string { return "fixed" }}).Apply(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Outcomes[0].Reason, "bridge closed")
	assert.Equal(t, "fixed", page.requests[0].ID)
}

func TestApplyStopsOnCancelledContext(t *testing.T) {
	page := &fakePage{fields: map[string]*fakeField{"#a": visibleField(KindText, "x")}}
	doc := docOf(Entry{Key: "a", Setting: ExportedSetting{Selector: "#a", Type: "text", Value: StringValue("y")}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewReconciler(page, Options{}).Apply(ctx, doc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Outcomes)
}
