package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/controller"
	"github.com/dgnsrekt/shotover_agent/internal/settings"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
	"github.com/dgnsrekt/shotover_agent/internal/tabactivity"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	tabs      []cdpcontrol.TabInfo
	export    controller.ExportResult
	imported  []byte
	importRes controller.ImportResult
	saveAll   controller.SaveAllResult
	loadAll   controller.LoadAllResult
	loaded    snapshot.LoadedConfig
	exports   []snapshot.ExportMeta
	document  []byte
	events    []Event
	calls     []string
	err       error
}

func (f *fakeAPI) call(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeAPI) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	return f.tabs, f.call("tabs")
}
func (f *fakeAPI) Status(ctx context.Context, tabID string) (controller.TabStatus, error) {
	return controller.TabStatus{TabID: tabID}, f.call("status")
}
func (f *fakeAPI) Track(ctx context.Context, tabID string) (tabactivity.TrackAck, error) {
	return tabactivity.TrackAck{Type: "tracked", TabID: tabID}, f.call("track")
}
func (f *fakeAPI) WaitIdle(ctx context.Context, tabID string, timeout time.Duration) error {
	return f.call("wait-idle")
}
func (f *fakeAPI) PageStatus(ctx context.Context, tabID string) (cdpcontrol.PageStatus, error) {
	return cdpcontrol.PageStatus{URL: "http://127.0.0.1/", ActivePage: "/cameras", HasFields: true, FieldCount: 4}, f.call("page")
}
func (f *fakeAPI) Navigate(ctx context.Context, tabID, path string) error {
	return f.call("navigate " + path)
}
func (f *fakeAPI) Export(ctx context.Context, tabID string) (controller.ExportResult, error) {
	return f.export, f.call("export")
}
func (f *fakeAPI) Import(ctx context.Context, tabID string, raw []byte) (controller.ImportResult, error) {
	f.imported = raw
	return f.importRes, f.call("import")
}
func (f *fakeAPI) SaveAll(ctx context.Context, tabID string) (controller.SaveAllResult, error) {
	return f.saveAll, f.call("save-all")
}
func (f *fakeAPI) LoadPage(ctx context.Context, tabID, path string) (controller.ImportResult, error) {
	return f.importRes, f.call("load-page " + path)
}
func (f *fakeAPI) LoadAll(ctx context.Context, tabID string) (controller.LoadAllResult, error) {
	return f.loadAll, f.call("load-all")
}
func (f *fakeAPI) LoadedConfig(ctx context.Context) (snapshot.LoadedConfig, error) {
	return f.loaded, f.call("config")
}
func (f *fakeAPI) SetLoadedConfig(ctx context.Context, fileName, content string) (snapshot.LoadedConfig, error) {
	f.loaded = snapshot.LoadedConfig{FileName: fileName, FileContent: json.RawMessage(content)}
	return f.loaded, f.call("set-config")
}
func (f *fakeAPI) ClearLoadedConfig(ctx context.Context) error {
	f.loaded = snapshot.LoadedConfig{}
	return f.call("clear-config")
}
func (f *fakeAPI) ListExports(ctx context.Context) ([]snapshot.ExportMeta, error) {
	return f.exports, f.call("exports")
}
func (f *fakeAPI) ExportDocument(ctx context.Context, id string) ([]byte, error) {
	return f.document, f.call("document " + id)
}
func (f *fakeAPI) LoadExport(ctx context.Context, id string) (snapshot.LoadedConfig, error) {
	return snapshot.LoadedConfig{FileName: id + ".json"}, f.call("load-export " + id)
}
func (f *fakeAPI) DeleteExport(ctx context.Context, id string) error {
	return f.call("delete " + id)
}
func (f *fakeAPI) Events(ctx context.Context, kinds []string, tabID string, fn func(Event) error) error {
	if err := f.call("events"); err != nil {
		return err
	}
	for _, ev := range f.events {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// captureOutput routes pterm output into a buffer for the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	pterm.SetDefaultOutput(&buf)
	pterm.DisableStyling()
	t.Cleanup(func() {
		pterm.SetDefaultOutput(os.Stdout)
		pterm.EnableStyling()
	})
	return &buf
}

func TestTabsTable(t *testing.T) {
	buf := captureOutput(t)
	api := &fakeAPI{tabs: []cdpcontrol.TabInfo{{TabID: "T1", URL: "http://192.168.1.20/"}}}
	require.NoError(t, New(api, &bytes.Buffer{}).Tabs(context.Background(), false))
	assert.Contains(t, buf.String(), "T1")
	assert.Contains(t, buf.String(), "http://192.168.1.20/")
}

func TestTabsEmpty(t *testing.T) {
	buf := captureOutput(t)
	require.NoError(t, New(&fakeAPI{}, &bytes.Buffer{}).Tabs(context.Background(), false))
	assert.Contains(t, buf.String(), "No Shotover tabs open")
}

func TestExportToStdout(t *testing.T) {
	captureOutput(t)
	var out bytes.Buffer
	api := &fakeAPI{export: controller.ExportResult{JSON: "{\n  \"Zoom\": {}\n}"}}
	require.NoError(t, New(api, &out).Export(context.Background(), ExportInput{}))
	assert.Equal(t, "{\n  \"Zoom\": {}\n}\n", out.String())
}

func TestExportToFile(t *testing.T) {
	buf := captureOutput(t)
	path := filepath.Join(t.TempDir(), "out.json")
	api := &fakeAPI{export: controller.ExportResult{JSON: `{"a":1}`, Count: 1, ExportID: "e1"}}
	require.NoError(t, New(api, &bytes.Buffer{}).Export(context.Background(), ExportInput{OutFile: path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", string(data))
	assert.Contains(t, buf.String(), "export e1")
}

func TestImportRejectsNonJSONFile(t *testing.T) {
	captureOutput(t)
	path := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	api := &fakeAPI{}
	err := New(api, &bytes.Buffer{}).Import(context.Background(), "", path, false)
	assert.ErrorIs(t, err, errNotJSON)
	assert.Empty(t, api.calls)
}

func TestImportPrintsFailures(t *testing.T) {
	buf := captureOutput(t)
	path := filepath.Join(t.TempDir(), "s.JSON")
	require.NoError(t, os.WriteFile(path, []byte(`{"Zoom":{"value":"2"}}`), 0o644))

	api := &fakeAPI{importRes: controller.ImportResult{Page: "/lens", Passes: []*settings.ImportReport{{
		Committed: 1,
		Failed:    1,
		Outcomes: []settings.Outcome{
			{Key: "Zoom", Status: settings.StatusCommitted},
			{Key: "Iris", Selector: "#iris", Status: settings.StatusFailed, Reason: "field not found"},
		},
	}}}}
	require.NoError(t, New(api, &bytes.Buffer{}).Import(context.Background(), "", path, false))

	assert.Equal(t, `{"Zoom":{"value":"2"}}`, string(api.imported))
	out := buf.String()
	assert.Contains(t, out, "Iris")
	assert.Contains(t, out, "field not found")
	assert.Contains(t, out, "1 committed, 1 failed")
}

func TestSaveAllWritesDefaultFile(t *testing.T) {
	buf := captureOutput(t)
	t.Chdir(t.TempDir())

	api := &fakeAPI{saveAll: controller.SaveAllResult{ExportID: "e2", Pages: map[string]int{"/lens": 2, "/cameras": 3}, JSON: `{"/cameras":{},"/lens":{}}`}}
	require.NoError(t, New(api, &bytes.Buffer{}).SaveAll(context.Background(), "", "", false))

	data, err := os.ReadFile(SaveAllFileName)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/cameras")
	assert.Contains(t, buf.String(), "Saved 5 settings across 2 pages")
}

func TestLoadPageWithFileSetsConfigFirst(t *testing.T) {
	captureOutput(t)
	path := filepath.Join(t.TempDir(), "pages.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"/lens":{}}`), 0o644))

	api := &fakeAPI{importRes: controller.ImportResult{Page: "/lens"}}
	require.NoError(t, New(api, &bytes.Buffer{}).LoadPage(context.Background(), LoadInput{Path: "/lens", File: path}))
	assert.Equal(t, []string{"set-config", "load-page /lens"}, api.calls)
	assert.Equal(t, "pages.json", api.loaded.FileName)
}

func TestLoadAllSummary(t *testing.T) {
	buf := captureOutput(t)
	api := &fakeAPI{loadAll: controller.LoadAllResult{Pages: []controller.ImportResult{
		{Page: "/lens", Passes: []*settings.ImportReport{{Committed: 2}, {Committed: 2}}},
		{Page: "/gimbal", Passes: []*settings.ImportReport{{Committed: 1, Failed: 1}}},
	}}}
	require.NoError(t, New(api, &bytes.Buffer{}).LoadAll(context.Background(), LoadInput{}))
	assert.Contains(t, buf.String(), "/gimbal")
	assert.Contains(t, buf.String(), "Loaded 2 pages, 1 settings failed")
}

func TestConfigShowAndClear(t *testing.T) {
	captureOutput(t)
	api := &fakeAPI{loaded: snapshot.LoadedConfig{FileName: "rig.json", FileContent: json.RawMessage(`{"zoom":{"selector":"#zoom","type":"text","value":"1"}}`)}}
	var out bytes.Buffer
	c := New(api, &out)

	require.NoError(t, c.ConfigShow(context.Background(), false))
	assert.Contains(t, out.String(), "\"zoom\": {")
	assert.Contains(t, out.String(), "\"selector\": \"#zoom\"")

	require.NoError(t, c.ConfigClear(context.Background()))
	assert.Equal(t, []string{"config", "clear-config"}, api.calls)
	assert.Empty(t, api.loaded.FileName)
}

func TestErrorsPropagate(t *testing.T) {
	captureOutput(t)
	api := &fakeAPI{err: &APIError{Status: 409, Detail: "No settings loaded"}}
	err := New(api, &bytes.Buffer{}).LoadAll(context.Background(), LoadInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No settings loaded")
}

func TestStatusTrackAndWait(t *testing.T) {
	buf := captureOutput(t)
	api := &fakeAPI{}
	require.NoError(t, New(api, &bytes.Buffer{}).Status(context.Background(), StatusInput{TabID: "T1", Track: true, WaitIdle: time.Second}))
	assert.Equal(t, []string{"track", "wait-idle", "status"}, api.calls)
	assert.Contains(t, buf.String(), "Tab T1 is idle")
}

func TestPageNavigatesFirst(t *testing.T) {
	buf := captureOutput(t)
	api := &fakeAPI{}
	require.NoError(t, New(api, &bytes.Buffer{}).Page(context.Background(), "", "/cameras", false))
	assert.Equal(t, []string{"navigate /cameras", "page"}, api.calls)
	assert.Contains(t, buf.String(), "Field Count")
}

func TestExportsListJSON(t *testing.T) {
	captureOutput(t)
	var out bytes.Buffer
	api := &fakeAPI{exports: []snapshot.ExportMeta{{ID: "e1", Format: snapshot.FormatPages}}}
	require.NoError(t, New(api, &out).ExportsList(context.Background(), true))
	assert.Contains(t, out.String(), `"id": "e1"`)
	assert.Contains(t, out.String(), `"format": "pages"`)
}

func TestExportsGetToStdout(t *testing.T) {
	captureOutput(t)
	var out bytes.Buffer
	api := &fakeAPI{document: []byte(`{"a":1}`)}
	require.NoError(t, New(api, &out).ExportsGet(context.Background(), "e1", ""))
	assert.Equal(t, `{"a":1}`, out.String())
}

func TestWatchPrintsEvents(t *testing.T) {
	buf := captureOutput(t)
	api := &fakeAPI{events: []Event{
		{Kind: "status", Data: []byte(`{"type":"status","tab_id":"T1","flow":"load_all","message":"Going to Page: /lens"}`)},
		{Kind: "tabIdle", Data: []byte(`{"type":"tabIdle","tab_id":"T1"}`)},
		{Kind: "import", Data: []byte(`{"type":"import","tab_id":"T1","page":"/lens","pass":2,"committed":3,"skipped":0,"failed":1}`)},
	}}
	require.NoError(t, New(api, &bytes.Buffer{}).Watch(context.Background(), []string{" status ", ""}, "", false))
	out := buf.String()
	assert.Contains(t, out, "[load_all] Going to Page: /lens")
	assert.Contains(t, out, "tab T1 idle")
	assert.Contains(t, out, "import /lens pass 2: 3 committed, 0 skipped, 1 failed")
}

func TestRootRejectsUnknownOutput(t *testing.T) {
	captureOutput(t)
	root := NewRootCmd()
	root.SetArgs([]string{"tabs", "-o", "yaml"})
	root.SetOut(&bytes.Buffer{})
	assert.ErrorIs(t, root.Execute(), errUnsupportedOutput)
}
