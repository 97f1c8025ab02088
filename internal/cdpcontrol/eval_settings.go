package cdpcontrol

import (
	"fmt"

	"github.com/dgnsrekt/shotover_agent/internal/settings"
)

func jsPing() string {
	return wrapJSEval(`return JSON.stringify({ok:true,data:true});`)
}

func jsPageStatus() string {
	return wrapJSEval(jsFieldHelpers + `
var fields = _scsFields();
return JSON.stringify({ok:true,data:{
  url: String(location.href),
  active_page: _scsActivePage(),
  has_fields: !!fields,
  field_count: fields ? fields.length : 0
}});
`)
}

// jsCollectElements reports raw facts for every form element in DOM order.
// Each path runs from the element up to, but excluding, <html>.
func jsCollectElements() string {
	return wrapJSEval(`
var nodes = document.querySelectorAll("input, select, textarea, [contenteditable='true']");
var out = [];
for (var i = 0; i < nodes.length; i++) {
  var el = nodes[i];
  var path = [];
  for (var cur = el; cur && cur.nodeType === 1 && cur.tagName.toLowerCase() !== "html"; cur = cur.parentElement) {
    var parent = cur.parentElement;
    path.push({
      tag: cur.tagName,
      class_name: typeof cur.className === "string" ? cur.className : "",
      index: parent ? Array.prototype.indexOf.call(parent.children, cur) + 1 : 1
    });
  }
  out.push({
    tag: el.tagName,
    id: el.id || "",
    name: typeof el.name === "string" ? el.name : "",
    data_key: el.getAttribute("data-setting-key") || "",
    type_attr: typeof el.type === "string" ? el.type : "",
    content_editable: !!el.isContentEditable,
    checked: !!el.checked,
    value: el.value === undefined || el.value === null ? "" : String(el.value),
    inner_html: el.isContentEditable ? el.innerHTML : "",
    path: path
  });
}
return JSON.stringify({ok:true,data:{elements:out}});
`)
}

// jsExpandSections opens every visible collapsible card, clicking again when
// the first click left it collapsed.
func jsExpandSections() string {
	return wrapJSEvalAsync(`
function _sleep(ms) { return new Promise(function(r){ setTimeout(r, ms); }); }
var buttons = Array.from(document.querySelectorAll('button.btn[data-toggle="collapse"][id^="card_"]'))
  .filter(function(b){ return b.style.display !== "none"; });
var clicked = 0;
for (var i = 0; i < buttons.length; i++) {
  var b = buttons[i];
  b.click(); clicked++;
  await _sleep(100);
  if (b.classList.contains("collapsed")) {
    b.click(); clicked++;
    await _sleep(100);
  }
}
return JSON.stringify({ok:true,data:{buttons:buttons.length,clicks:clicked}});
`)
}

func jsInspectSetting(selector string, mode settings.Visibility) string {
	return wrapJSEval(jsFieldHelpers + fmt.Sprintf(`
var el = _scsResolve(%s);
if (!el) return JSON.stringify({ok:true,data:{found:false}});
var page = _scsActivePage();
var hidden = _scsHidden(el, %s);
var f = _scsFindField(el);
if (!f) return JSON.stringify({ok:true,data:{found:true,hidden:hidden,has_field:false,page:page}});
return JSON.stringify({ok:true,data:{
  found: true,
  hidden: hidden,
  has_field: true,
  kind: _scsKind(f),
  readonly: !!f.readonly,
  disabled: !!f.disabled,
  container_id: f.container && f.container.id ? String(f.container.id) : "",
  page: page,
  getter: _scsGetter(f),
  value: _scsPlain(f.value),
  raw: _scsPlain(f.raw)
}});
`, jsString(selector), jsString(string(mode))))
}

// jsInstallBridge registers the page-side SET_SCS_FIELD listener once per
// document. It writes the planned value into the matching field object,
// commits it and answers with SCS_FIELD_RESULT.
const jsInstallBridge = `
if (!window.__shotoverBridge) {
  window.__shotoverBridge = true;
  window.addEventListener("message", function(event) {
    if (event.source !== window || !event.data || event.data.type !== "SET_SCS_FIELD") return;
    var msg = event.data;
    var reply = {type:"SCS_FIELD_RESULT", id:msg.id, status:"ok", value:null};
    try {
      var el = _scsResolve(msg.setting && msg.setting.selector);
      if (!el) throw new Error("missing target");
      var f = _scsFindField(el);
      if (!f) throw new Error("missing field");
      f.value = msg.value;
      if (typeof f.commit === "function") f.commit();
      reply.value = _scsPlain(f.value);
    } catch (e) {
      reply.status = "error";
      reply.error = String(e && e.message || e);
    }
    window.postMessage(reply, "*");
  });
}
`

func jsCommitSetting(req settings.CommitRequest, timeoutMs int) string {
	return wrapJSEvalAsync(jsFieldHelpers + jsInstallBridge + fmt.Sprintf(`
var req = %s;
var ack = await new Promise(function(resolve) {
  var timer = setTimeout(function(){ window.removeEventListener("message", onMsg); resolve(null); }, %d);
  function onMsg(event) {
    var d = event.data;
    if (event.source !== window || !d || d.type !== "SCS_FIELD_RESULT" || d.id !== req.id) return;
    clearTimeout(timer);
    window.removeEventListener("message", onMsg);
    resolve(d);
  }
  window.addEventListener("message", onMsg);
  window.postMessage({type:"SET_SCS_FIELD", id:req.id, setting:req.setting, kind:req.kind, value:req.value}, "*");
});
if (!ack) return JSON.stringify({ok:false,error_code:"EVAL_TIMEOUT",error_message:"no SCS_FIELD_RESULT for " + req.id});
return JSON.stringify({ok:true,data:{id:ack.id,status:ack.status,value:ack.value === undefined ? null : ack.value,error:ack.error || ""}});
`, jsJSON(req), timeoutMs))
}

// jsWriteDOM writes a setting straight into the element and fires the input
// and change events the page listens for.
func jsWriteDOM(s settings.ExportedSetting) string {
	return wrapJSEval(jsFieldHelpers + fmt.Sprintf(`
var s = %s;
var el = _scsResolve(s.selector);
if (!el) return JSON.stringify({ok:false,error_code:"SETTING_NOT_FOUND",error_message:"missing target " + s.selector});
if (s.type === "checkbox" || s.type === "radio") el.checked = s.value === true || s.value === "true";
else if (s.type === "contenteditable") el.innerHTML = String(s.value);
else el.value = String(s.value);
el.dispatchEvent(new Event("input", {bubbles:true}));
el.dispatchEvent(new Event("change", {bubbles:true}));
return JSON.stringify({ok:true,data:{written:true}});
`, jsJSON(s)))
}

func jsActivePage() string {
	return wrapJSEval(jsFieldHelpers + `
return JSON.stringify({ok:true,data:{page:_scsActivePage()}});
`)
}

// jsNavigatePage clicks the navigation button whose data-resource equals path.
func jsNavigatePage(path string) string {
	return wrapJSEval(fmt.Sprintf(`
var want = %s;
var buttons = document.querySelectorAll("button[data-resource]");
for (var i = 0; i < buttons.length; i++) {
  if (buttons[i].getAttribute("data-resource") === want) {
    buttons[i].click();
    return JSON.stringify({ok:true,data:{page:want}});
  }
}
return JSON.stringify({ok:false,error_code:"VALIDATION",error_message:"no navigation button for " + want});
`, jsString(path)))
}
