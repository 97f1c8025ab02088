package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// ErrInvalidDocument is returned when a settings file is not a JSON object of
// settings or of pages.
var ErrInvalidDocument = errors.New("settings: invalid settings document")

// ExportedSetting is one recorded form field.
type ExportedSetting struct {
	Selector string `json:"selector"`
	Type     string `json:"type"`
	Value    Value  `json:"value"`
}

// Entry pairs a setting with its document key.
type Entry struct {
	Key     string
	Setting ExportedSetting
}

// Document is an insertion-ordered map of setting keys to settings.
// Setting an existing key replaces the value in place.
type Document struct {
	entries []Entry
	index   map[string]int
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{index: make(map[string]int)}
}

func (d *Document) Set(key string, s ExportedSetting) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[key]; ok {
		d.entries[i].Setting = s
		return
	}
	d.index[key] = len(d.entries)
	d.entries = append(d.entries, Entry{Key: key, Setting: s})
}

func (d *Document) Get(key string) (ExportedSetting, bool) {
	if d == nil || d.index == nil {
		return ExportedSetting{}, false
	}
	i, ok := d.index[key]
	if !ok {
		return ExportedSetting{}, false
	}
	return d.entries[i].Setting, true
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Entries returns the settings in document order.
func (d *Document) Entries() []Entry {
	if d == nil {
		return nil
	}
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.Key
	}
	return keys
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if d != nil {
		for i, e := range d.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := marshalNoEscape(e.Key)
			if err != nil {
				return nil, err
			}
			v, err := marshalNoEscape(e.Setting)
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := parseFlat(data)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// MarshalIndent renders the document the way it is written to disk.
func (d *Document) MarshalIndent() ([]byte, error) {
	return indent(d)
}

// PageDocuments maps page paths to their documents, in page order.
type PageDocuments struct {
	pages []string
	docs  map[string]*Document
}

func NewPageDocuments() *PageDocuments {
	return &PageDocuments{docs: make(map[string]*Document)}
}

func (p *PageDocuments) Set(page string, doc *Document) {
	if p.docs == nil {
		p.docs = make(map[string]*Document)
	}
	if _, ok := p.docs[page]; !ok {
		p.pages = append(p.pages, page)
	}
	p.docs[page] = doc
}

func (p *PageDocuments) Get(page string) (*Document, bool) {
	if p == nil || p.docs == nil {
		return nil, false
	}
	d, ok := p.docs[page]
	return d, ok
}

func (p *PageDocuments) Pages() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.pages...)
}

func (p *PageDocuments) Len() int {
	if p == nil {
		return 0
	}
	return len(p.pages)
}

func (p *PageDocuments) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if p != nil {
		for i, page := range p.pages {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := marshalNoEscape(page)
			if err != nil {
				return nil, err
			}
			v, err := p.docs[page].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *PageDocuments) MarshalIndent() ([]byte, error) {
	return indent(p)
}

// File is a parsed settings file. Exactly one of Flat and Pages is set.
type File struct {
	Flat  *Document
	Pages *PageDocuments
}

// Document returns the settings for page. A flat file applies to every page.
func (f *File) Document(page string) (*Document, bool) {
	if f == nil {
		return nil, false
	}
	if f.Flat != nil {
		return f.Flat, true
	}
	return f.Pages.Get(page)
}

// Parse reads a flat or page-keyed settings file. The file is flat when every
// top-level value is an object carrying a selector.
func Parse(data []byte) (*File, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrInvalidDocument
	}
	if !json.Valid(data) {
		return nil, ErrInvalidDocument
	}
	flat := true
	err := jsonparser.ObjectEach(data, func(_ []byte, value []byte, dt jsonparser.ValueType, _ int) error {
		if dt != jsonparser.Object {
			return ErrInvalidDocument
		}
		if _, _, _, err := jsonparser.Get(value, "selector"); err != nil {
			flat = false
		}
		return nil
	})
	if err != nil {
		return nil, ErrInvalidDocument
	}
	if flat {
		doc, err := parseFlat(data)
		if err != nil {
			return nil, err
		}
		return &File{Flat: doc}, nil
	}
	pages := NewPageDocuments()
	err = jsonparser.ObjectEach(data, func(key []byte, value []byte, _ jsonparser.ValueType, _ int) error {
		page, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		doc, err := parseFlat(value)
		if err != nil {
			return fmt.Errorf("page %q: %w", page, err)
		}
		pages.Set(page, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &File{Pages: pages}, nil
}

// ParseDocument reads a flat settings document.
func ParseDocument(data []byte) (*Document, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if f.Flat == nil {
		return nil, fmt.Errorf("%w: expected flat settings, got pages", ErrInvalidDocument)
	}
	return f.Flat, nil
}

func parseFlat(data []byte) (*Document, error) {
	doc := NewDocument()
	err := jsonparser.ObjectEach(data, func(key []byte, value []byte, dt jsonparser.ValueType, _ int) error {
		k, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		if dt != jsonparser.Object {
			return fmt.Errorf("setting %q is not an object", k)
		}
		var s ExportedSetting
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("setting %q: %w", k, err)
		}
		doc.Set(k, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

func indent(v json.Marshaler) ([]byte, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
