package schema

import (
	"sort"

	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
)

// Entity names.
const (
	EntityUser         = "User"
	EntityRole         = "Role"
	EntitySite         = "Site"
	EntitySiteUser     = "SiteUser"
	EntityContentType  = "ContentType"
	EntityTaxonomy     = "Taxonomy"
	EntityTerm         = "Term"
	EntityPost         = "Post"
	EntityPage         = "Page"
	EntityRevision     = "Revision"
	EntityComment      = "Comment"
	EntitySetting      = "Setting"
	EntityMenuLocation = "MenuLocation"
	EntityMenu         = "Menu"
	EntityMenuItem     = "MenuItem"
	EntityMediaFolder  = "MediaFolder"
	EntityMedia        = "Media"
	EntityWidget       = "Widget"
	EntityRedirect     = "Redirect"
	EntityForm         = "Form"
)

var publishStatus = []any{"draft", "published", "scheduled", "private", "trash"}

func index(fields ...string) dbmanager.IndexSpec {
	return dbmanager.IndexSpec{Fields: fields}
}

func unique(fields ...string) dbmanager.IndexSpec {
	return dbmanager.IndexSpec{Fields: fields, Unique: true}
}

// Global entities. Uniqueness is enforced here only; site collections stay free of unique
// indexes on seeded fields so bootstrap never depends on prior state.
var (
	userDefinition = &Definition{
		Name:       EntityUser,
		Collection: "users",
		Scope:      ScopeGlobal,
		Timestamps: true,
		Fields: []Field{
			{Name: "email", Type: TypeString, Required: true},
			{Name: "username", Type: TypeString, Required: true},
			{Name: "displayName", Type: TypeString},
			{Name: "passwordHash", Type: TypeString},
			{Name: "status", Type: TypeString, Default: "active", Enum: []any{"active", "pending", "suspended"}},
			{Name: "roleIds", Type: TypeArray, Items: TypeId, Default: []any{}},
			{Name: "emailVerified", Type: TypeBoolean, Default: false},
			{Name: "lastLoginAt", Type: TypeDate, Nullable: true},
		},
		Indexes: []dbmanager.IndexSpec{unique("email"), unique("username")},
	}

	roleDefinition = &Definition{
		Name:       EntityRole,
		Collection: "roles",
		Scope:      ScopeGlobal,
		Timestamps: true,
		Fields: []Field{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "slug", Type: TypeString, Required: true},
			{Name: "description", Type: TypeString},
			{Name: "capabilities", Type: TypeArray, Items: TypeString, Default: []any{}},
			{Name: "isSystem", Type: TypeBoolean, Default: false},
		},
		Indexes: []dbmanager.IndexSpec{unique("slug")},
	}

	siteDefinition = &Definition{
		Name:       EntitySite,
		Collection: "sites",
		Scope:      ScopeGlobal,
		Timestamps: true,
		Fields: []Field{
			{Name: "siteId", Type: TypeInteger, Required: true},
			{Name: "name", Type: TypeString, Required: true},
			{Name: "displayName", Type: TypeString, Required: true},
			{Name: "domain", Type: TypeString, Required: true},
			{Name: "active", Type: TypeBoolean, Default: true},
			{Name: "ownerId", Type: TypeId, Nullable: true},
		},
		Indexes: []dbmanager.IndexSpec{unique("siteId"), unique("name"), unique("domain")},
	}

	siteUserDefinition = &Definition{
		Name:       EntitySiteUser,
		Collection: "site_users",
		Scope:      ScopeGlobal,
		Timestamps: true,
		Fields: []Field{
			{Name: "siteId", Type: TypeInteger, Required: true},
			{Name: "userId", Type: TypeId, Required: true},
			{Name: "roleId", Type: TypeId, Required: true},
			{Name: "status", Type: TypeString, Default: "active", Enum: []any{"active", "invited", "disabled"}},
		},
		Indexes: []dbmanager.IndexSpec{unique("siteId", "userId"), index("userId")},
	}
)

// Site entities.
var (
	contentTypeDefinition = &Definition{
		Name:       EntityContentType,
		Collection: "content_types",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "label", Type: TypeString, Required: true},
			{Name: "pluralLabel", Type: TypeString},
			{Name: "description", Type: TypeString},
			{Name: "hierarchical", Type: TypeBoolean, Default: false},
			{Name: "hasArchive", Type: TypeBoolean, Default: false},
			{Name: "taxonomies", Type: TypeArray, Items: TypeString, Default: []any{}},
			{Name: "supports", Type: TypeArray, Items: TypeString, Default: []any{}},
			{Name: "builtin", Type: TypeBoolean, Default: false},
		},
		Indexes: []dbmanager.IndexSpec{index("name")},
	}

	taxonomyDefinition = &Definition{
		Name:       EntityTaxonomy,
		Collection: "taxonomies",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "label", Type: TypeString, Required: true},
			{Name: "pluralLabel", Type: TypeString},
			{Name: "hierarchical", Type: TypeBoolean, Default: false},
			{Name: "contentTypes", Type: TypeArray, Items: TypeString, Default: []any{}},
			{Name: "builtin", Type: TypeBoolean, Default: false},
		},
		Indexes: []dbmanager.IndexSpec{index("name")},
	}

	termDefinition = &Definition{
		Name:       EntityTerm,
		Collection: "terms",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "taxonomy", Type: TypeString, Required: true},
			{Name: "name", Type: TypeString, Required: true},
			{Name: "slug", Type: TypeString, Required: true},
			{Name: "description", Type: TypeString},
			{Name: "parentId", Type: TypeId, Nullable: true},
			{Name: "count", Type: TypeInteger, Default: 0},
		},
		Indexes: []dbmanager.IndexSpec{index("taxonomy", "slug"), index("parentId")},
	}

	postDefinition = &Definition{
		Name:       EntityPost,
		Collection: "posts",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "title", Type: TypeString, Required: true},
			{Name: "slug", Type: TypeString, Required: true},
			{Name: "content", Type: TypeString, Default: ""},
			{Name: "excerpt", Type: TypeString},
			{Name: "status", Type: TypeString, Default: "draft", Enum: publishStatus},
			{Name: "contentType", Type: TypeString, Default: "post"},
			{Name: "authorId", Type: TypeId, Nullable: true},
			{Name: "categoryIds", Type: TypeArray, Items: TypeId, Default: []any{}},
			{Name: "tagIds", Type: TypeArray, Items: TypeId, Default: []any{}},
			{Name: "featuredMediaId", Type: TypeId, Nullable: true},
			{Name: "commentStatus", Type: TypeString, Default: "open", Enum: []any{"open", "closed"}},
			{Name: "publishedAt", Type: TypeDate, Nullable: true},
			{Name: "seo", Type: TypeObject},
		},
		Indexes: []dbmanager.IndexSpec{index("slug"), index("status", "publishedAt"), index("authorId"), index("categoryIds")},
	}

	pageDefinition = &Definition{
		Name:       EntityPage,
		Collection: "pages",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "title", Type: TypeString, Required: true},
			{Name: "slug", Type: TypeString, Required: true},
			{Name: "content", Type: TypeString, Default: ""},
			{Name: "status", Type: TypeString, Default: "draft", Enum: publishStatus},
			{Name: "authorId", Type: TypeId, Nullable: true},
			{Name: "parentId", Type: TypeId, Nullable: true},
			{Name: "menuOrder", Type: TypeInteger, Default: 0},
			{Name: "template", Type: TypeString, Default: "default"},
			{Name: "publishedAt", Type: TypeDate, Nullable: true},
			{Name: "seo", Type: TypeObject},
		},
		Indexes: []dbmanager.IndexSpec{index("slug"), index("parentId", "menuOrder")},
	}

	revisionDefinition = &Definition{
		Name:       EntityRevision,
		Collection: "revisions",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "parentType", Type: TypeString, Required: true, Enum: []any{"post", "page"}},
			{Name: "parentId", Type: TypeId, Required: true},
			{Name: "revision", Type: TypeInteger, Required: true},
			{Name: "title", Type: TypeString},
			{Name: "content", Type: TypeString},
			{Name: "authorId", Type: TypeId, Nullable: true},
		},
		Indexes: []dbmanager.IndexSpec{index("parentType", "parentId", "revision")},
	}

	commentDefinition = &Definition{
		Name:       EntityComment,
		Collection: "comments",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "postId", Type: TypeId, Required: true},
			{Name: "parentId", Type: TypeId, Nullable: true},
			{Name: "authorId", Type: TypeId, Nullable: true},
			{Name: "authorName", Type: TypeString, Required: true},
			{Name: "authorEmail", Type: TypeString},
			{Name: "content", Type: TypeString, Required: true},
			{Name: "status", Type: TypeString, Default: "pending", Enum: []any{"pending", "approved", "spam", "trash"}},
		},
		Indexes: []dbmanager.IndexSpec{index("postId", "status")},
	}

	settingDefinition = &Definition{
		Name:       EntitySetting,
		Collection: "settings",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "key", Type: TypeString, Required: true},
			{Name: "value", Type: TypeMixed},
			{Name: "type", Type: TypeString, Required: true, Enum: []any{"string", "number", "boolean", "array", "json"}},
			{Name: "group", Type: TypeString, Required: true, Enum: []any{"general", "auth", "media"}},
			{Name: "label", Type: TypeString},
			{Name: "public", Type: TypeBoolean, Default: false},
		},
		Indexes: []dbmanager.IndexSpec{index("group", "key")},
	}

	menuLocationDefinition = &Definition{
		Name:       EntityMenuLocation,
		Collection: "menu_locations",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "label", Type: TypeString, Required: true},
			{Name: "description", Type: TypeString},
			{Name: "menuId", Type: TypeId, Nullable: true},
		},
		Indexes: []dbmanager.IndexSpec{index("name")},
	}

	menuDefinition = &Definition{
		Name:       EntityMenu,
		Collection: "menus",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "slug", Type: TypeString, Required: true},
			{Name: "location", Type: TypeString, Nullable: true},
			{Name: "description", Type: TypeString},
		},
		Indexes: []dbmanager.IndexSpec{index("slug"), index("location")},
	}

	menuItemDefinition = &Definition{
		Name:       EntityMenuItem,
		Collection: "menu_items",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "menuId", Type: TypeId, Required: true},
			{Name: "label", Type: TypeString, Required: true},
			{Name: "type", Type: TypeString, Required: true, Enum: []any{"page", "post", "term", "custom"}},
			{Name: "url", Type: TypeString, Nullable: true},
			{Name: "pageId", Type: TypeId, Nullable: true},
			{Name: "postId", Type: TypeId, Nullable: true},
			{Name: "termId", Type: TypeId, Nullable: true},
			{Name: "parentId", Type: TypeId, Nullable: true},
			{Name: "order", Type: TypeInteger, Default: 0},
			{Name: "target", Type: TypeString, Default: "_self", Enum: []any{"_self", "_blank"}},
		},
		Indexes: []dbmanager.IndexSpec{index("menuId", "order")},
	}

	mediaFolderDefinition = &Definition{
		Name:       EntityMediaFolder,
		Collection: "media_folders",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "slug", Type: TypeString, Required: true},
			{Name: "parentId", Type: TypeId, Nullable: true},
			{Name: "description", Type: TypeString},
		},
		Indexes: []dbmanager.IndexSpec{index("parentId")},
	}

	mediaDefinition = &Definition{
		Name:       EntityMedia,
		Collection: "media",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "filename", Type: TypeString, Required: true},
			{Name: "originalName", Type: TypeString},
			{Name: "mimeType", Type: TypeString, Required: true},
			{Name: "size", Type: TypeInteger, Required: true},
			{Name: "url", Type: TypeString, Required: true},
			{Name: "alt", Type: TypeString},
			{Name: "caption", Type: TypeString},
			{Name: "width", Type: TypeInteger, Nullable: true},
			{Name: "height", Type: TypeInteger, Nullable: true},
			{Name: "folderId", Type: TypeId, Nullable: true},
			{Name: "uploadedBy", Type: TypeId, Nullable: true},
		},
		Indexes: []dbmanager.IndexSpec{index("folderId"), index("mimeType")},
	}

	widgetDefinition = &Definition{
		Name:       EntityWidget,
		Collection: "widgets",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "area", Type: TypeString, Required: true},
			{Name: "type", Type: TypeString, Required: true},
			{Name: "title", Type: TypeString},
			{Name: "config", Type: TypeObject, Default: map[string]any{}},
			{Name: "order", Type: TypeInteger, Default: 0},
			{Name: "active", Type: TypeBoolean, Default: true},
		},
		Indexes: []dbmanager.IndexSpec{index("area", "order")},
	}

	redirectDefinition = &Definition{
		Name:       EntityRedirect,
		Collection: "redirects",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "from", Type: TypeString, Required: true},
			{Name: "to", Type: TypeString, Required: true},
			{Name: "statusCode", Type: TypeInteger, Default: 301, Enum: []any{301, 302, 307, 308}},
			{Name: "active", Type: TypeBoolean, Default: true},
			{Name: "hits", Type: TypeInteger, Default: 0},
		},
		Indexes: []dbmanager.IndexSpec{unique("from")},
	}

	formDefinition = &Definition{
		Name:       EntityForm,
		Collection: "forms",
		Scope:      ScopeSite,
		Timestamps: true,
		Fields: []Field{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "slug", Type: TypeString, Required: true},
			{Name: "fields", Type: TypeArray, Items: TypeObject, Default: []any{}},
			{Name: "submitLabel", Type: TypeString, Default: "Submit"},
			{Name: "notifyEmail", Type: TypeString},
			{Name: "active", Type: TypeBoolean, Default: true},
		},
		Indexes: []dbmanager.IndexSpec{unique("slug")},
	}
)

var definitions = map[string]*Definition{}

func register(defs ...*Definition) {
	for _, d := range defs {
		if _, ok := definitions[d.Name]; ok {
			panic("schema: duplicate definition " + d.Name)
		}
		definitions[d.Name] = d
	}
}

func init() {
	register(userDefinition, roleDefinition, siteDefinition, siteUserDefinition)
	register(contentTypeDefinition, taxonomyDefinition, termDefinition, postDefinition, pageDefinition,
		revisionDefinition, commentDefinition, settingDefinition, menuLocationDefinition, menuDefinition,
		menuItemDefinition, mediaFolderDefinition, mediaDefinition, widgetDefinition, redirectDefinition,
		formDefinition)
}

// Lookup returns the definition of entity, or dberror.ErrUnknownEntity.
func Lookup(entity string) (*Definition, error) {
	d, ok := definitions[entity]
	if !ok {
		return nil, dberror.ErrUnknownEntity.Msg("unknown entity " + entity)
	}
	return d, nil
}

// Names returns every entity name, sorted.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForScope returns the definitions of one scope sorted by entity name.
func ForScope(scope Scope) []*Definition {
	var defs []*Definition
	for _, name := range Names() {
		if d := definitions[name]; d.Scope == scope {
			defs = append(defs, d)
		}
	}
	return defs
}
