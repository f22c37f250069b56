// Package schema holds the canonical structural definitions of every entity. A definition
// is declared once and bound unchanged to every connection that needs it.
package schema

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date" // RFC 3339 string
	TypeId      FieldType = "id"   // _id of another document
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeMixed   FieldType = "mixed" // any JSON value
)

// Scope tells which database an entity lives in.
type Scope int

const (
	ScopeGlobal Scope = iota + 1
	ScopeSite
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeSite:
		return "site"
	}
	return "unknown"
}

const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

type Field struct {
	Name     string
	Type     FieldType
	Items    FieldType // element type of arrays; empty means any
	Required bool
	Nullable bool
	Default  any
	Enum     []any
}

type Definition struct {
	Name       string // entity name, e.g. "Post"
	Collection string
	Scope      Scope
	Fields     []Field
	Indexes    []dbmanager.IndexSpec
	Timestamps bool // maintain createdAt and updatedAt

	compileOnce sync.Once
	validator   *Validator
	compileErr  error
}

// Field returns the named field.
func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// check reports structural mistakes in the definition itself.
func (d *Definition) check() error {
	if d.Name == "" || d.Collection == "" {
		return dberror.ErrInvalidDefinition.Msg("definition needs a name and a collection")
	}
	if d.Scope != ScopeGlobal && d.Scope != ScopeSite {
		return dberror.ErrInvalidDefinition.Msg(d.Name + ": invalid scope")
	}
	seen := map[string]bool{dbmanager.IdField: true}
	if d.Timestamps {
		seen[FieldCreatedAt] = true
		seen[FieldUpdatedAt] = true
	}
	for _, f := range d.Fields {
		if f.Name == "" || strings.Contains(f.Name, ".") {
			return dberror.ErrInvalidDefinition.Msg(fmt.Sprintf("%s: invalid field name %q", d.Name, f.Name))
		}
		if seen[f.Name] {
			return dberror.ErrInvalidDefinition.Msg(d.Name + ": duplicate field " + f.Name)
		}
		seen[f.Name] = true
		if f.Required && f.Default != nil {
			return dberror.ErrInvalidDefinition.Msg(d.Name + ": required field with default " + f.Name)
		}
	}
	for _, idx := range d.Indexes {
		if len(idx.Fields) == 0 {
			return dberror.ErrInvalidDefinition.Msg(d.Name + ": index without fields")
		}
		for _, name := range idx.Fields {
			if !seen[strings.SplitN(name, ".", 2)[0]] {
				return dberror.ErrInvalidDefinition.Msg(d.Name + ": index on unknown field " + name)
			}
		}
	}
	return nil
}

// JSONSchema renders the definition as a draft 2020-12 schema. The partial form drops the
// required list and is used to check updates.
func (d *Definition) JSONSchema(partial bool) ([]byte, error) {
	props := map[string]any{
		dbmanager.IdField: map[string]any{"type": "string", "minLength": 1},
	}
	required := []string{dbmanager.IdField}
	if d.Timestamps {
		props[FieldCreatedAt] = fieldSchema(Field{Type: TypeDate})
		props[FieldUpdatedAt] = fieldSchema(Field{Type: TypeDate})
		required = append(required, FieldCreatedAt, FieldUpdatedAt)
	}
	for _, f := range d.Fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}

	s := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"title":                d.Name,
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if !partial {
		s["required"] = required
	}
	return json.Marshal(s)
}

func fieldSchema(f Field) map[string]any {
	s := typeSchema(f.Type)
	if f.Type == TypeArray && f.Items != "" {
		s["items"] = typeSchema(f.Items)
	}
	if len(f.Enum) > 0 {
		enum := append([]any(nil), f.Enum...)
		if f.Nullable {
			enum = append(enum, nil)
		}
		s["enum"] = enum
	}
	if f.Nullable {
		if t, ok := s["type"].(string); ok {
			s["type"] = []string{t, "null"}
		}
	}
	return s
}

func typeSchema(t FieldType) map[string]any {
	switch t {
	case TypeDate:
		return map[string]any{"type": "string", "format": "date-time"}
	case TypeId:
		return map[string]any{"type": "string", "minLength": 1}
	case TypeMixed, "":
		return map[string]any{}
	}
	return map[string]any{"type": string(t)}
}

// Validator checks documents against the compiled schemas of one definition.
type Validator struct {
	entity  string
	full    *jsonschema.Schema
	partial *jsonschema.Schema
}

// Validator compiles the definition's schemas on first use and reuses them afterwards.
func (d *Definition) Validator() (*Validator, error) {
	d.compileOnce.Do(func() {
		d.validator, d.compileErr = d.compile()
	})
	return d.validator, d.compileErr
}

func (d *Definition) compile() (*Validator, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	full, err := d.compileSchema(false)
	if err != nil {
		return nil, err
	}
	partial, err := d.compileSchema(true)
	if err != nil {
		return nil, err
	}
	return &Validator{entity: d.Name, full: full, partial: partial}, nil
}

func (d *Definition) compileSchema(partial bool) (*jsonschema.Schema, error) {
	b, err := d.JSONSchema(partial)
	if err != nil {
		return nil, dberror.ErrInvalidDefinition.MsgErr(d.Name+": unable to render schema", err)
	}
	url := d.Name + ".json"
	if partial {
		url = d.Name + ".partial.json"
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, dberror.ErrInvalidDefinition.MsgErr(d.Name+": invalid JSON schema", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, dberror.ErrInvalidDefinition.MsgErr(d.Name+": invalid JSON schema", err)
	}
	return compiled, nil
}

// Validate checks a complete document.
func (v *Validator) Validate(doc dbmanager.Document) error {
	return v.validate(v.full, doc)
}

// ValidatePartial checks the fields of an update. Absent fields are not reported.
func (v *Validator) ValidatePartial(set dbmanager.Document) error {
	return v.validate(v.partial, set)
}

func (v *Validator) validate(s *jsonschema.Schema, doc dbmanager.Document) error {
	// the validator only understands plain decoded JSON values
	if err := s.Validate(map[string]any(doc)); err != nil {
		return dberror.ErrValidation.MsgErr(v.entity+": "+validationMessage(err), err)
	}
	return nil
}

// validationMessage flattens a jsonschema error into "path: message" pairs.
func validationMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}

// ApplyDefaults fills absent fields that declare a default. Defaults are copied, never shared.
func (d *Definition) ApplyDefaults(doc dbmanager.Document) error {
	for _, f := range d.Fields {
		if f.Default == nil {
			continue
		}
		if _, ok := doc[f.Name]; ok {
			continue
		}
		v, err := dbmanager.NormalizeValue(f.Default)
		if err != nil {
			return err
		}
		doc[f.Name] = v
	}
	return nil
}
