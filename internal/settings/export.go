package settings

import (
	"fmt"
	"strings"
)

// PathSegment is one element on the way from <body> down to a field.
type PathSegment struct {
	Tag       string `json:"tag"`
	ClassName string `json:"class_name"`
	Index     int    `json:"index"`
}

// ElementFacts are the raw attributes collected from a form element in the page.
type ElementFacts struct {
	Tag             string        `json:"tag"`
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	DataKey         string        `json:"data_key"`
	TypeAttr        string        `json:"type_attr"`
	ContentEditable bool          `json:"content_editable"`
	Checked         bool          `json:"checked"`
	Value           string        `json:"value"`
	InnerHTML       string        `json:"inner_html"`
	Path            []PathSegment `json:"path"`
}

// SettingType returns the exported type: the native type attribute, then
// "contenteditable", then "text".
func (e ElementFacts) SettingType() string {
	if e.TypeAttr != "" {
		return strings.ToLower(e.TypeAttr)
	}
	if e.ContentEditable {
		return "contenteditable"
	}
	return "text"
}

func (e ElementFacts) SettingValue() Value {
	switch e.SettingType() {
	case "checkbox", "radio":
		return BoolValue(e.Checked)
	case "contenteditable":
		return StringValue(e.InnerHTML)
	}
	return StringValue(e.Value)
}

// Key names the element in the document. index is its position among the
// collected elements.
func (e ElementFacts) Key(index int) string {
	switch {
	case e.ID != "":
		return e.ID
	case e.Name != "":
		return e.Name
	case e.DataKey != "":
		return e.DataKey
	}
	return fmt.Sprintf("%s_%d", strings.ToLower(e.Tag), index)
}

// Selector returns a CSS selector for the element: #id, then [name="..."],
// then a structural path of tag, classes and nth-child position.
func (e ElementFacts) Selector() string {
	if e.ID != "" {
		return "#" + e.ID
	}
	if e.Name != "" {
		return fmt.Sprintf("[name=%q]", e.Name)
	}
	parts := make([]string, 0, len(e.Path))
	for _, seg := range e.Path {
		part := strings.ToLower(seg.Tag)
		if classes := strings.Fields(seg.ClassName); len(classes) > 0 {
			part += "." + strings.Join(classes, ".")
		}
		part += fmt.Sprintf(":nth-child(%d)", seg.Index)
		parts = append(parts, part)
	}
	return strings.Join(parts, " > ")
}

// BuildDocument turns collected element facts into a settings document.
// Element paths arrive ordered from the element upward.
func BuildDocument(elements []ElementFacts) *Document {
	doc := NewDocument()
	for i, el := range elements {
		el.Path = reversed(el.Path)
		doc.Set(el.Key(i), ExportedSetting{
			Selector: el.Selector(),
			Type:     el.SettingType(),
			Value:    el.SettingValue(),
		})
	}
	return doc
}

func reversed(path []PathSegment) []PathSegment {
	out := make([]PathSegment, len(path))
	for i, seg := range path {
		out[len(path)-1-i] = seg
	}
	return out
}
