package cdpcontrol

import "encoding/json"

// jsFieldHelpers are shared by every script that touches the Shotover field
// registry (window.content.fields). Field objects keep their element in
// elm_query[0] and expose value, raw, readonly, disabled and commit().
const jsFieldHelpers = `
function _scsFields() {
  var scs = window.content;
  if (!scs || !scs.fields) return null;
  if (typeof scs.fields.values === "function") return Array.from(scs.fields.values());
  return Object.keys(scs.fields).map(function(k){ return scs.fields[k]; });
}
function _scsFindField(el) {
  var fields = _scsFields();
  if (!fields) return null;
  for (var i = 0; i < fields.length; i++) {
    var f = fields[i];
    if (f && f.elm_query && f.elm_query[0] === el) return f;
  }
  return null;
}
function _scsKind(f) {
  var name = (f && f.constructor && f.constructor.name || "").toLowerCase();
  if (name === "scs_select") return "select";
  if (name === "scs_number") return "number";
  if (name === "scs_text") return "text";
  return "other";
}
function _scsGetter(f) {
  var g = f && (f.getter || f.get || (f.opts && f.opts.get));
  if (typeof g === "string") return g;
  if (typeof g === "function") return g.name || "";
  return "";
}
function _scsPlain(v) {
  if (v === null || v === undefined) return null;
  if (typeof v === "number") return isFinite(v) ? v : null;
  if (typeof v === "string" || typeof v === "boolean") return v;
  try { return JSON.parse(JSON.stringify(v)); } catch(_) { return String(v); }
}
function _scsActivePage() {
  var btn = document.querySelector("button.nav-item.active[data-resource]") || document.querySelector("button.nav-item.active");
  return btn ? (btn.getAttribute("data-resource") || "") : "";
}
function _scsHidden(el, mode) {
  for (var cur = el; cur; cur = cur.parentElement) {
    var display = mode === "inline" ? cur.style.display : getComputedStyle(cur).display;
    if (display === "none") return true;
  }
  return false;
}
function _scsResolve(selector) {
  if (!selector) return null;
  try { return document.querySelector(selector); } catch(_) { return null; }
}
`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }
