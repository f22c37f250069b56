package models

import (
	"time"
)

type ContentType struct {
	Base
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	PluralLabel  string   `json:"pluralLabel,omitempty"`
	Description  string   `json:"description,omitempty"`
	Hierarchical bool     `json:"hierarchical"`
	HasArchive   bool     `json:"hasArchive"`
	Taxonomies   []string `json:"taxonomies,omitempty"`
	Supports     []string `json:"supports,omitempty"`
	Builtin      bool     `json:"builtin"`
}

type Taxonomy struct {
	Base
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	PluralLabel  string   `json:"pluralLabel,omitempty"`
	Hierarchical bool     `json:"hierarchical"`
	ContentTypes []string `json:"contentTypes,omitempty"`
	Builtin      bool     `json:"builtin"`
}

type Term struct {
	Base
	Taxonomy    string  `json:"taxonomy"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description string  `json:"description,omitempty"`
	ParentId    *string `json:"parentId,omitempty"`
	Count       int     `json:"count"`
}

type Post struct {
	Base
	Title           string     `json:"title"`
	Slug            string     `json:"slug"`
	Content         string     `json:"content"`
	Excerpt         string     `json:"excerpt,omitempty"`
	Status          string     `json:"status,omitempty"`
	ContentType     string     `json:"contentType,omitempty"`
	AuthorId        *string    `json:"authorId,omitempty"`
	CategoryIds     []string   `json:"categoryIds,omitempty"`
	TagIds          []string   `json:"tagIds,omitempty"`
	FeaturedMediaId *string    `json:"featuredMediaId,omitempty"`
	CommentStatus   string     `json:"commentStatus,omitempty"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
}

type Page struct {
	Base
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Content     string     `json:"content"`
	Status      string     `json:"status,omitempty"`
	AuthorId    *string    `json:"authorId,omitempty"`
	ParentId    *string    `json:"parentId,omitempty"`
	MenuOrder   int        `json:"menuOrder"`
	Template    string     `json:"template,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

type Revision struct {
	Base
	ParentType string  `json:"parentType"`
	ParentId   string  `json:"parentId"`
	Revision   int     `json:"revision"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content,omitempty"`
	AuthorId   *string `json:"authorId,omitempty"`
}

type Comment struct {
	Base
	PostId      string  `json:"postId"`
	ParentId    *string `json:"parentId,omitempty"`
	AuthorId    *string `json:"authorId,omitempty"`
	AuthorName  string  `json:"authorName"`
	AuthorEmail string  `json:"authorEmail,omitempty"`
	Content     string  `json:"content"`
	Status      string  `json:"status,omitempty"`
}

// Setting is one key/value row. Type names how Value is to be read.
type Setting struct {
	Base
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Type   string `json:"type"`
	Group  string `json:"group"`
	Label  string `json:"label,omitempty"`
	Public bool   `json:"public"`
}

type MenuLocation struct {
	Base
	Name        string  `json:"name"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	MenuId      *string `json:"menuId,omitempty"`
}

type Menu struct {
	Base
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Location    *string `json:"location,omitempty"`
	Description string  `json:"description,omitempty"`
}

const (
	MenuItemPage   = "page"
	MenuItemPost   = "post"
	MenuItemTerm   = "term"
	MenuItemCustom = "custom"
)

type MenuItem struct {
	Base
	MenuId   string  `json:"menuId"`
	Label    string  `json:"label"`
	Type     string  `json:"type"`
	URL      *string `json:"url,omitempty"`
	PageId   *string `json:"pageId,omitempty"`
	PostId   *string `json:"postId,omitempty"`
	TermId   *string `json:"termId,omitempty"`
	ParentId *string `json:"parentId,omitempty"`
	Order    int     `json:"order"`
	Target   string  `json:"target,omitempty"`
}

type MediaFolder struct {
	Base
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	ParentId    *string `json:"parentId,omitempty"`
	Description string  `json:"description,omitempty"`
}

type Media struct {
	Base
	Filename     string  `json:"filename"`
	OriginalName string  `json:"originalName,omitempty"`
	MimeType     string  `json:"mimeType"`
	Size         int64   `json:"size"`
	URL          string  `json:"url"`
	Alt          string  `json:"alt,omitempty"`
	Caption      string  `json:"caption,omitempty"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
	FolderId     *string `json:"folderId,omitempty"`
	UploadedBy   *string `json:"uploadedBy,omitempty"`
}

type Widget struct {
	Base
	Area   string         `json:"area"`
	Type   string         `json:"type"`
	Title  string         `json:"title,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Order  int            `json:"order"`
	Active bool           `json:"active"`
}

type Redirect struct {
	Base
	From       string `json:"from"`
	To         string `json:"to"`
	StatusCode int    `json:"statusCode,omitempty"`
	Active     bool   `json:"active"`
	Hits       int    `json:"hits"`
}

type Form struct {
	Base
	Name        string           `json:"name"`
	Slug        string           `json:"slug"`
	Fields      []map[string]any `json:"fields,omitempty"`
	SubmitLabel string           `json:"submitLabel,omitempty"`
	NotifyEmail string           `json:"notifyEmail,omitempty"`
	Active      bool             `json:"active"`
}

// Ptr returns a pointer to v, for the optional reference fields above.
func Ptr[T any](v T) *T {
	return &v
}
