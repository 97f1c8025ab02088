package settings

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentKeepsInsertionOrder(t *testing.T) {
	doc := NewDocument()
	doc.Set("zeta", ExportedSetting{Selector: "#zeta", Type: "text", Value: StringValue("1")})
	doc.Set("alpha", ExportedSetting{Selector: "#alpha", Type: "checkbox", Value: BoolValue(true)})
	doc.Set("zeta", ExportedSetting{Selector: "#zeta", Type: "text", Value: StringValue("2")})

	assert.Equal(t, []string{"zeta", "alpha"}, doc.Keys())
	got, ok := doc.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, "2", got.Value.String())

	raw, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":{"selector":"#zeta","type":"text","value":"2"},"alpha":{"selector":"#alpha","type":"checkbox","value":true}}`, string(raw))
	assert.Less(t, strings.Index(string(raw), "zeta"), strings.Index(string(raw), "alpha"))
}

func TestMarshalIndentUsesTwoSpacesAndKeepsSelectors(t *testing.T) {
	doc := NewDocument()
	doc.Set("gain", ExportedSetting{Selector: `[name="gain"]`, Type: "number", Value: StringValue("<b>5</b>")})

	out, err := doc.MarshalIndent()
	require.NoError(t, err)
	want := "{\n  \"gain\": {\n    \"selector\": \"[name=\\\"gain\\\"]\",\n    \"type\": \"number\",\n    \"value\": \"<b>5</b>\"\n  }\n}"
	assert.Equal(t, want, string(out))
}

func TestParseFlatPreservesOrder(t *testing.T) {
	data := []byte(`{
	  "b": {"selector": "#b", "type": "text", "value": "x"},
	  "a": {"selector": "#a", "type": "checkbox", "value": false},
	  "c": {"selector": "#c", "type": "number", "value": 12.5}
	}`)
	f, err := Parse(data)
	require.NoError(t, err)
	require.NotNil(t, f.Flat)
	assert.Nil(t, f.Pages)
	assert.Equal(t, []string{"b", "a", "c"}, f.Flat.Keys())

	a, _ := f.Flat.Get("a")
	assert.True(t, a.Value.IsBool())
	assert.False(t, a.Value.Bool())
	c, _ := f.Flat.Get("c")
	assert.Equal(t, "12.5", c.Value.String())
}

func TestParsePageKeyed(t *testing.T) {
	data := []byte(`{
	  "/network": {"ip": {"selector": "#ip", "type": "text", "value": "10.0.0.2"}},
	  "/lens": {"zoom": {"selector": "#zoom", "type": "number", "value": "3"}}
	}`)
	f, err := Parse(data)
	require.NoError(t, err)
	require.NotNil(t, f.Pages)
	assert.Equal(t, []string{"/network", "/lens"}, f.Pages.Pages())

	lens, ok := f.Document("/lens")
	require.True(t, ok)
	assert.Equal(t, 1, lens.Len())
	_, ok = f.Document("/gimbal")
	assert.False(t, ok)
}

func TestParseFlatAppliesToEveryPage(t *testing.T) {
	f, err := Parse([]byte(`{"ip": {"selector": "#ip", "type": "text", "value": "x"}}`))
	require.NoError(t, err)
	doc, ok := f.Document("/anything")
	require.True(t, ok)
	assert.Equal(t, 1, doc.Len())
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":     `{"a":`,
		"array":        `[1,2]`,
		"empty":        ``,
		"scalar value": `{"a": 3}`,
		"bad page doc": `{"/lens": {"zoom": 4}}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestPageDocumentsRoundTrip(t *testing.T) {
	pages := NewPageDocuments()
	net := NewDocument()
	net.Set("ip", ExportedSetting{Selector: "#ip", Type: "text", Value: StringValue("192.168.1.5")})
	pages.Set("/network", net)
	pages.Set("/lens", NewDocument())

	out, err := pages.MarshalIndent()
	require.NoError(t, err)

	f, err := Parse(out)
	require.NoError(t, err)
	require.NotNil(t, f.Pages)
	assert.Equal(t, []string{"/network", "/lens"}, f.Pages.Pages())
}

func TestDocumentUnmarshalViaEncodingJSON(t *testing.T) {
	var wrapper struct {
		Doc *Document `json:"doc"`
	}
	err := json.Unmarshal([]byte(`{"doc":{"k":{"selector":"#k","type":"radio","value":true}}}`), &wrapper)
	require.NoError(t, err)
	require.NotNil(t, wrapper.Doc)
	k, ok := wrapper.Doc.Get("k")
	require.True(t, ok)
	assert.True(t, k.Value.Bool())
}
