package bootstrap

import (
	"github.com/tansive/sitestore/internal/sitestore/db/models"
)

func contentTypes() []models.ContentType {
	return []models.ContentType{
		{
			Name:         "post",
			Label:        "Post",
			PluralLabel:  "Posts",
			Hierarchical: false,
			HasArchive:   true,
			Taxonomies:   []string{"category", "tag"},
			Supports:     []string{"title", "editor", "excerpt", "thumbnail", "comments", "revisions"},
			Builtin:      true,
		},
		{
			Name:         "page",
			Label:        "Page",
			PluralLabel:  "Pages",
			Hierarchical: true,
			HasArchive:   false,
			Supports:     []string{"title", "editor", "thumbnail", "revisions", "page-attributes"},
			Builtin:      true,
		},
	}
}

func taxonomies() []models.Taxonomy {
	return []models.Taxonomy{
		{Name: "category", Label: "Category", PluralLabel: "Categories", Hierarchical: true, ContentTypes: []string{"post"}, Builtin: true},
		{Name: "tag", Label: "Tag", PluralLabel: "Tags", Hierarchical: false, ContentTypes: []string{"post"}, Builtin: true},
	}
}

// settingValues are the site specific inputs to the default settings.
type settingValues struct {
	title      string
	url        string
	adminEmail string
}

func settings(v settingValues) []models.Setting {
	return []models.Setting{
		{Group: "general", Key: "site_title", Type: "string", Value: v.title, Label: "Site title", Public: true},
		{Group: "general", Key: "site_tagline", Type: "string", Value: "Just another site", Label: "Tagline", Public: true},
		{Group: "general", Key: "site_url", Type: "string", Value: v.url, Label: "Site address", Public: true},
		{Group: "general", Key: "admin_email", Type: "string", Value: v.adminEmail, Label: "Administration email"},
		{Group: "general", Key: "timezone", Type: "string", Value: "UTC", Label: "Timezone", Public: true},
		{Group: "general", Key: "date_format", Type: "string", Value: "YYYY-MM-DD", Label: "Date format", Public: true},
		{Group: "general", Key: "time_format", Type: "string", Value: "HH:mm", Label: "Time format", Public: true},
		{Group: "general", Key: "language", Type: "string", Value: "en", Label: "Site language", Public: true},
		{Group: "general", Key: "posts_per_page", Type: "number", Value: 10, Label: "Posts per page", Public: true},
		{Group: "auth", Key: "allow_registration", Type: "boolean", Value: false, Label: "Anyone can register"},
		{Group: "auth", Key: "default_role", Type: "string", Value: "subscriber", Label: "New user default role"},
		{Group: "auth", Key: "require_email_verification", Type: "boolean", Value: true, Label: "Require email verification"},
		{Group: "auth", Key: "session_ttl_hours", Type: "number", Value: 24, Label: "Session lifetime in hours"},
		{Group: "media", Key: "max_upload_size_mb", Type: "number", Value: 10, Label: "Maximum upload size (MB)"},
		{Group: "media", Key: "allowed_mime_types", Type: "array", Value: []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml", "application/pdf"}, Label: "Allowed file types"},
		{Group: "media", Key: "image_quality", Type: "number", Value: 82, Label: "Image quality"},
	}
}

// SettingsCount is the number of settings rows every site starts with.
var SettingsCount = len(settings(settingValues{}))

func menuLocations() []models.MenuLocation {
	return []models.MenuLocation{
		{Name: "header", Label: "Header", Description: "Primary navigation shown in the site header"},
		{Name: "footer", Label: "Footer", Description: "Links shown in the site footer"},
	}
}

type seedPage struct {
	title   string
	slug    string
	content string
}

func seedPages(title string) []seedPage {
	return []seedPage{
		{"Home", "home", "<p>Welcome to " + title + ".</p>"},
		{"About", "about", "<p>Tell visitors who you are and what this site is about.</p>"},
		{"Contact", "contact", "<p>Let visitors know how to reach you.</p>"},
	}
}

const helloWorldContent = "<p>Welcome to your new site. This is your first post. Edit or delete it, then start writing!</p>"

type seedLink struct {
	label string
	url   string
}

var footerLinks = []seedLink{
	{"Privacy Policy", "#"},
	{"Terms of Service", "#"},
}

const blogURL = "/blog"
