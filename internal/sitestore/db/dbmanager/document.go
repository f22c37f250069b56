package dbmanager

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ToDocument converts a struct, map or Document into JSON shaped form.
func ToDocument(v any) (Document, error) {
	if v == nil {
		return nil, dberror.ErrInvalidInput.Msg("nil document")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("document is not serializable", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("document must be a JSON object", err)
	}
	return doc, nil
}

// NormalizeValue converts v into its JSON shaped equivalent, e.g. int 3 becomes float64 3.
func NormalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("value is not serializable", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("value is not serializable", err)
	}
	return out, nil
}

// NormalizeFilter returns a copy of f with every value in JSON shaped form.
func NormalizeFilter(f Filter) (Filter, error) {
	out := make(Filter, len(f))
	for k, v := range f {
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

// Decode copies doc into out, which is typically a pointer to a model struct or a slice.
func Decode(doc any, out any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return dberror.ErrDatabase.MsgErr("unable to encode document", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return dberror.ErrDatabase.MsgErr("unable to decode document", err)
	}
	return nil
}

// Clone returns a deep copy of doc.
func (doc Document) Clone() Document {
	c, err := ToDocument(doc)
	if err != nil {
		return nil
	}
	return c
}

// Id returns the _id of doc, or "" when it is missing or not a string.
func (doc Document) Id() string {
	id, _ := doc[IdField].(string)
	return id
}

// nestDotted turns {"a.b": 1, "c": 2} into {"a": {"b": 1}, "c": 2}.
func nestDotted(f map[string]any) map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		parts := strings.Split(k, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	return out
}
