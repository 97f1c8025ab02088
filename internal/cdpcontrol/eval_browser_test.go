package cdpcontrol

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/shotover_agent/internal/settings"
)

// fixturePage mimics the Shotover UI: navigation buttons, a collapsed card,
// a hidden gimbal panel and a field registry keyed by element.
const fixturePage = `<!doctype html><html><body>
<nav><button class="nav-item active" data-resource="/lens">Lens</button><button class="nav-item" data-resource="/gimbal">Gimbal</button></nav>
<button class="btn collapsed" data-toggle="collapse" id="card_1" onclick="this.classList.remove('collapsed')">Card</button>
<div id="field_2"><input id="zoom" type="number" value="50"></div>
<div id="field_5"><input id="map" type="text" value="a"></div>
<div style="display:none"><input id="other_gimbal" type="checkbox" checked></div>
<div class="panel"><input class="form-control wide" type="text" value="free"></div>
<script>
function scs_number(el){ this.elm_query=[el]; this.container=el.parentElement; this.value=0.5; this.raw="50"; this.commits=0; }
scs_number.prototype.commit=function(){ this.commits++; this.elm_query[0].value=String(this.value*100); };
function scs_text(el){ this.elm_query=[el]; this.container=el.parentElement; this.value=el.value; this.raw=el.value; this.commits=0; }
scs_text.prototype.commit=function(){ this.commits++; this.elm_query[0].value=this.value; };
window.content={fields:new Map([
  ["zoom", new scs_number(document.getElementById("zoom"))],
  ["map", new scs_text(document.getElementById("map"))]
])};
</script>
</body></html>`

func browserPath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser-backed test skipped in short mode")
	}
	if p := os.Getenv("SHOTOVER_TEST_BROWSER"); p != "" {
		return p
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chromium binary found")
	return ""
}

func runInFixture(t *testing.T, scripts ...string) []string {
	t.Helper()
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(browserPath(t)))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()
	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 30*time.Second)
	defer cancelTimeout()

	out := make([]string, len(scripts))
	actions := []chromedp.Action{chromedp.Navigate("data:text/html," + url.PathEscape(fixturePage))}
	for i, js := range scripts {
		actions = append(actions, chromedp.Evaluate(js, &out[i], func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		t.Fatalf("chromedp.Run() = %v", err)
	}
	return out
}

func TestBrowserCollectElementsBuildsDocument(t *testing.T) {
	out := runInFixture(t, jsCollectElements())

	var data struct {
		Elements []settings.ElementFacts `json:"elements"`
	}
	if err := decodeEnvelope(out[0], &data); err != nil {
		t.Fatalf("decodeEnvelope() = %v", err)
	}
	doc := settings.BuildDocument(data.Elements)

	zoom, ok := doc.Get("zoom")
	if !ok || zoom.Selector != "#zoom" || zoom.Type != "number" || zoom.Value.String() != "50" {
		t.Fatalf("zoom = %+v, ok=%v", zoom, ok)
	}
	other, ok := doc.Get("other_gimbal")
	if !ok || !other.Value.IsBool() || !other.Value.Bool() {
		t.Fatalf("other_gimbal = %+v, ok=%v", other, ok)
	}
	free, ok := doc.Get("input_3")
	if !ok {
		t.Fatalf("keys = %v; want input_3", doc.Keys())
	}
	if free.Selector != "body:nth-child(2) > div.panel:nth-child(6) > input.form-control.wide:nth-child(1)" {
		t.Fatalf("structural selector = %q", free.Selector)
	}
}

func TestBrowserInspectReportsFieldState(t *testing.T) {
	out := runInFixture(t,
		jsInspectSetting("#zoom", settings.VisibilityComputed),
		jsInspectSetting("#other_gimbal", settings.VisibilityComputed),
		jsInspectSetting("#missing", settings.VisibilityComputed),
	)

	var zoom settings.FieldState
	if err := decodeEnvelope(out[0], &zoom); err != nil {
		t.Fatalf("decodeEnvelope(zoom) = %v", err)
	}
	if !zoom.Found || !zoom.HasField || zoom.Kind != settings.KindNumber || zoom.Page != "/lens" || zoom.ContainerID != "field_2" {
		t.Fatalf("zoom state = %+v", zoom)
	}
	if settings.NumberFactor(zoom) != 100 {
		t.Fatalf("zoom factor = %v; want 100", settings.NumberFactor(zoom))
	}

	var hidden settings.FieldState
	if err := decodeEnvelope(out[1], &hidden); err != nil {
		t.Fatalf("decodeEnvelope(hidden) = %v", err)
	}
	if !hidden.Found || !hidden.Hidden || hidden.HasField {
		t.Fatalf("hidden state = %+v", hidden)
	}

	var missing settings.FieldState
	if err := decodeEnvelope(out[2], &missing); err != nil {
		t.Fatalf("decodeEnvelope(missing) = %v", err)
	}
	if missing.Found {
		t.Fatalf("missing state = %+v", missing)
	}
}

func TestBrowserCommitRoundTripsThroughBridge(t *testing.T) {
	req := settings.CommitRequest{
		ID:      "commit-1",
		Setting: settings.ExportedSetting{Selector: "#zoom", Type: "number", Value: settings.StringValue("75")},
		Kind:    settings.KindNumber,
		Value:   0.75,
	}
	out := runInFixture(t,
		jsCommitSetting(req, 2000),
		wrapJSEval(`var f = window.content.fields.get("zoom"); return JSON.stringify({ok:true,data:{value:f.value,commits:f.commits,dom:document.getElementById("zoom").value}});`),
	)

	var ack settings.CommitAck
	if err := decodeEnvelope(out[0], &ack); err != nil {
		t.Fatalf("decodeEnvelope(ack) = %v", err)
	}
	if ack.ID != "commit-1" || ack.Status != settings.CommitOK {
		t.Fatalf("ack = %+v", ack)
	}

	var state struct {
		Value   float64 `json:"value"`
		Commits int     `json:"commits"`
		DOM     string  `json:"dom"`
	}
	if err := decodeEnvelope(out[1], &state); err != nil {
		t.Fatalf("decodeEnvelope(state) = %v", err)
	}
	if state.Value != 0.75 || state.Commits != 1 || state.DOM != "75" {
		t.Fatalf("field after commit = %+v", state)
	}
}

func TestBrowserExpandAndNavigate(t *testing.T) {
	out := runInFixture(t,
		jsExpandSections(),
		jsNavigatePage("/gimbal"),
		jsNavigatePage("/nowhere"),
		jsActivePage(),
	)

	var expanded struct {
		Buttons int `json:"buttons"`
		Clicks  int `json:"clicks"`
	}
	if err := decodeEnvelope(out[0], &expanded); err != nil {
		t.Fatalf("decodeEnvelope(expand) = %v", err)
	}
	if expanded.Buttons != 1 || expanded.Clicks != 1 {
		t.Fatalf("expand = %+v", expanded)
	}
	if err := decodeEnvelope(out[1], nil); err != nil {
		t.Fatalf("navigate /gimbal = %v", err)
	}
	if err := decodeEnvelope(out[2], nil); err == nil {
		t.Fatal("navigate /nowhere succeeded")
	}
	var active struct {
		Page string `json:"page"`
	}
	if err := decodeEnvelope(out[3], &active); err != nil || active.Page != "/lens" {
		t.Fatalf("active page = %+v, err=%v", active, err)
	}
}
