package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
	"github.com/tidwall/gjson"
)

func TestCatalog(t *testing.T) {
	assert.Len(t, Names(), 20)
	assert.Len(t, ForScope(ScopeGlobal), 4)
	assert.Len(t, ForScope(ScopeSite), 16)

	for _, name := range Names() {
		d, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name)
		_, err = d.Validator()
		assert.NoError(t, err, name)
	}

	_, err := Lookup("Widgetz")
	assert.ErrorIs(t, err, dberror.ErrUnknownEntity)
	assert.ErrorIs(t, err, dberror.ErrConfiguration)
}

func TestCollectionsAreDistinct(t *testing.T) {
	seen := map[string]string{}
	for _, name := range Names() {
		d, _ := Lookup(name)
		other, dup := seen[d.Collection]
		assert.False(t, dup, "%s and %s share collection %s", name, other, d.Collection)
		seen[d.Collection] = name
	}
}

func TestJSONSchema(t *testing.T) {
	d, err := Lookup(EntityMenuItem)
	require.NoError(t, err)

	full, err := d.JSONSchema(false)
	require.NoError(t, err)
	assert.Equal(t, "MenuItem", gjson.GetBytes(full, "title").String())
	assert.False(t, gjson.GetBytes(full, "additionalProperties").Bool())
	assert.Equal(t, `["string","null"]`, gjson.GetBytes(full, "properties.url.type").Raw)
	assert.Equal(t, "date-time", gjson.GetBytes(full, "properties.createdAt.format").String())
	required := gjson.GetBytes(full, "required").Array()
	var names []string
	for _, r := range required {
		names = append(names, r.String())
	}
	assert.ElementsMatch(t, []string{"_id", "createdAt", "updatedAt", "menuId", "label", "type"}, names)

	partial, err := d.JSONSchema(true)
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(partial, "required").Exists())
}

func validPost() dbmanager.Document {
	return dbmanager.Document{
		"_id":       "0190f1c2-0000-7000-8000-000000000001",
		"createdAt": "2025-01-01T00:00:00Z",
		"updatedAt": "2025-01-01T00:00:00Z",
		"title":     "Hello",
		"slug":      "hello",
	}
}

func TestValidate(t *testing.T) {
	d, _ := Lookup(EntityPost)
	v, err := d.Validator()
	require.NoError(t, err)

	doc := validPost()
	require.NoError(t, d.ApplyDefaults(doc))
	assert.NoError(t, v.Validate(doc))
	assert.Equal(t, "draft", doc["status"])
	assert.Equal(t, []any{}, doc["categoryIds"])

	tests := []struct {
		name   string
		mutate func(dbmanager.Document)
	}{
		{"missing required", func(d dbmanager.Document) { delete(d, "title") }},
		{"wrong type", func(d dbmanager.Document) { d["title"] = float64(3) }},
		{"bad enum", func(d dbmanager.Document) { d["status"] = "hidden" }},
		{"unknown field", func(d dbmanager.Document) { d["colour"] = "red" }},
		{"bad date", func(d dbmanager.Document) { d["publishedAt"] = "yesterday" }},
		{"bad array item", func(d dbmanager.Document) { d["tagIds"] = []any{""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validPost()
			tt.mutate(doc)
			err := v.Validate(doc)
			assert.ErrorIs(t, err, dberror.ErrValidation)
			assert.ErrorIs(t, err, dberror.ErrInvalidInput)
		})
	}

	// nullable fields accept null
	doc = validPost()
	doc["publishedAt"] = nil
	doc["authorId"] = nil
	assert.NoError(t, v.Validate(doc))
}

func TestValidatePartial(t *testing.T) {
	d, _ := Lookup(EntityPost)
	v, err := d.Validator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidatePartial(dbmanager.Document{"status": "published"}))
	assert.ErrorIs(t, v.ValidatePartial(dbmanager.Document{"status": "gone"}), dberror.ErrValidation)
	assert.ErrorIs(t, v.ValidatePartial(dbmanager.Document{"nope": 1}), dberror.ErrValidation)
}

func TestIntegerEnum(t *testing.T) {
	d, _ := Lookup(EntityRedirect)
	v, err := d.Validator()
	require.NoError(t, err)

	doc := dbmanager.Document{
		"_id": "r1", "createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-01-01T00:00:00Z",
		"from": "/old", "to": "/new",
	}
	require.NoError(t, d.ApplyDefaults(doc))
	assert.Equal(t, float64(301), doc["statusCode"])
	assert.NoError(t, v.Validate(doc))

	doc["statusCode"] = float64(200)
	assert.ErrorIs(t, v.Validate(doc), dberror.ErrValidation)
}

func TestDefaultsAreNotShared(t *testing.T) {
	d, _ := Lookup(EntityPost)
	a, b := validPost(), validPost()
	require.NoError(t, d.ApplyDefaults(a))
	require.NoError(t, d.ApplyDefaults(b))
	a["categoryIds"] = append(a["categoryIds"].([]any), "x")
	assert.Equal(t, []any{}, b["categoryIds"])

	// present fields are left alone
	c := validPost()
	c["status"] = "published"
	require.NoError(t, d.ApplyDefaults(c))
	assert.Equal(t, "published", c["status"])
}

func TestCheckDefinition(t *testing.T) {
	tests := []struct {
		name string
		def  *Definition
	}{
		{"no collection", &Definition{Name: "X", Scope: ScopeSite}},
		{"bad scope", &Definition{Name: "X", Collection: "x"}},
		{"duplicate field", &Definition{Name: "X", Collection: "x", Scope: ScopeSite, Fields: []Field{{Name: "a"}, {Name: "a"}}}},
		{"reserved field", &Definition{Name: "X", Collection: "x", Scope: ScopeSite, Timestamps: true, Fields: []Field{{Name: "createdAt"}}}},
		{"index on unknown field", &Definition{Name: "X", Collection: "x", Scope: ScopeSite, Indexes: []dbmanager.IndexSpec{index("b")}}},
		{"required with default", &Definition{Name: "X", Collection: "x", Scope: ScopeSite, Fields: []Field{{Name: "a", Required: true, Default: "x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.Validator()
			assert.ErrorIs(t, err, dberror.ErrInvalidDefinition)
		})
	}
}
