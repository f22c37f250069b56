// Package bootstrap populates a new site's database with the baseline entity set.
//
// The steps run strictly in order because later steps reference ids created by earlier ones.
// The sequence is not transactional and performs no existence checks: running it twice for
// the same site duplicates the baseline. Whether and how to repair a partially bootstrapped
// site is left to the operator; see StepError.
package bootstrap

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tansive/sitestore/internal/common/slug"
	"github.com/tansive/sitestore/internal/sitestore/common"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/modelfactory"
	"github.com/tansive/sitestore/internal/sitestore/db/models"
	"github.com/tansive/sitestore/internal/sitestore/db/schema"
	"github.com/tansive/sitestore/pkg/types"
)

// Step names, in execution order.
const (
	StepContentTypes  = "content-types"
	StepTaxonomies    = "taxonomies"
	StepSettings      = "settings"
	StepDefaultTerm   = "default-term"
	StepMenuLocations = "menu-locations"
	StepMediaFolder   = "media-folder"
	StepCollections   = "collections"
	StepAuthorContent = "author-content"
)

// Options tune a bootstrap run. Every field is optional.
type Options struct {
	// AuthorID is the user the seed pages and post are attributed to. It defaults to the
	// acting user of the context. Without either no pages, posts or menus are created.
	AuthorID   types.UserId `validate:"max=128"`
	SiteTitle  string       `validate:"max=256"`
	SiteURL    string       `validate:"omitempty,url"`
	AdminEmail string       `validate:"omitempty,email"`
}

// Result lists what a run created, keyed by the seed's name or slug.
type Result struct {
	SiteId         types.SiteId
	ContentTypeIds map[string]string
	TaxonomyIds    map[string]string
	SettingIds     []string
	DefaultTermId  string
	LocationIds    map[string]string
	MediaFolderId  string
	Collections    []string
	PageIds        map[string]string
	PostIds        []string
	MenuIds        map[string]string
	MenuItemIds    []string
	// Committed counts every document written, including updates.
	Committed int
}

func newResult(id types.SiteId) *Result {
	return &Result{
		SiteId:         id,
		ContentTypeIds: map[string]string{},
		TaxonomyIds:    map[string]string{},
		LocationIds:    map[string]string{},
		PageIds:        map[string]string{},
		MenuIds:        map[string]string{},
	}
}

type step struct {
	name       string
	authorOnly bool
	run        func(r *run, ctx context.Context) error
}

var steps = []step{
	{name: StepContentTypes, run: (*run).createContentTypes},
	{name: StepTaxonomies, run: (*run).createTaxonomies},
	{name: StepSettings, run: (*run).createSettings},
	{name: StepDefaultTerm, run: (*run).createDefaultTerm},
	{name: StepMenuLocations, run: (*run).createMenuLocations},
	{name: StepMediaFolder, run: (*run).createMediaFolder},
	{name: StepCollections, run: (*run).ensureCollections},
	{name: StepAuthorContent, authorOnly: true, run: (*run).createAuthorContent},
}

// Steps returns the step names in execution order.
func Steps() []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	return names
}

type Bootstrapper struct {
	factory      *modelfactory.Factory
	defaultTitle string
	validate     *validator.Validate
	now          func() time.Time
	steps        []step
}

// New returns a Bootstrapper creating documents through factory. defaultTitle is used when a
// run does not name the site.
func New(factory *modelfactory.Factory, defaultTitle string) *Bootstrapper {
	return &Bootstrapper{
		factory:      factory,
		defaultTitle: defaultTitle,
		validate:     validator.New(),
		now:          func() time.Time { return time.Now().UTC() },
		steps:        steps,
	}
}

// run carries the state of one bootstrap invocation.
type run struct {
	b      *Bootstrapper
	siteId types.SiteId
	opts   Options
	result *Result
}

// Run bootstraps site id. On failure it returns the partial Result together with a
// *StepError.
func (b *Bootstrapper) Run(ctx context.Context, id types.SiteId, opts Options) (*Result, error) {
	if id <= 0 {
		return nil, dberror.ErrInvalidSiteID.Msg("invalid site id " + id.String())
	}
	if err := b.validate.Struct(opts); err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid bootstrap options", err)
	}
	if opts.SiteTitle == "" {
		opts.SiteTitle = b.defaultTitle
	}
	if opts.AuthorID.IsEmpty() {
		opts.AuthorID = common.UserIdFromContext(ctx)
	}

	r := &run{b: b, siteId: id, opts: opts, result: newResult(id)}
	logger := log.Ctx(ctx).With().Str("site_id", id.String()).Logger()
	for _, s := range b.steps {
		if s.authorOnly && opts.AuthorID.IsEmpty() {
			logger.Debug().Str("step", s.name).Msg("no author, skipping step")
			continue
		}
		before := r.result.Committed
		if err := s.run(r, ctx); err != nil {
			logger.Error().Err(err).Str("step", s.name).Int("committed", r.result.Committed).Msg("site bootstrap failed")
			return r.result, &StepError{SiteId: id, Step: s.name, Committed: r.result.Committed, Err: err}
		}
		logger.Debug().Str("step", s.name).Int("created", r.result.Committed-before).Msg("bootstrap step done")
	}
	logger.Info().Int("committed", r.result.Committed).Msg("site bootstrapped")
	return r.result, nil
}

func (r *run) model(ctx context.Context, entity string) (*modelfactory.Model, error) {
	return r.b.factory.Site(ctx, r.siteId, entity)
}

// create writes v one document at a time so Committed stays exact.
func (r *run) create(ctx context.Context, m *modelfactory.Model, v any) (string, error) {
	doc, err := m.Create(ctx, v)
	if err != nil {
		return "", err
	}
	r.result.Committed++
	return doc.Id(), nil
}

func (r *run) createContentTypes(ctx context.Context) error {
	m, err := r.model(ctx, schema.EntityContentType)
	if err != nil {
		return err
	}
	for _, ct := range contentTypes() {
		id, err := r.create(ctx, m, ct)
		if err != nil {
			return err
		}
		r.result.ContentTypeIds[ct.Name] = id
	}
	return nil
}

func (r *run) createTaxonomies(ctx context.Context) error {
	m, err := r.model(ctx, schema.EntityTaxonomy)
	if err != nil {
		return err
	}
	for _, tx := range taxonomies() {
		id, err := r.create(ctx, m, tx)
		if err != nil {
			return err
		}
		r.result.TaxonomyIds[tx.Name] = id
	}
	return nil
}

func (r *run) createSettings(ctx context.Context) error {
	m, err := r.model(ctx, schema.EntitySetting)
	if err != nil {
		return err
	}
	rows := settings(settingValues{title: r.opts.SiteTitle, url: r.opts.SiteURL, adminEmail: r.opts.AdminEmail})
	for _, s := range rows {
		id, err := r.create(ctx, m, s)
		if err != nil {
			return err
		}
		r.result.SettingIds = append(r.result.SettingIds, id)
	}
	return nil
}

func (r *run) createDefaultTerm(ctx context.Context) error {
	m, err := r.model(ctx, schema.EntityTerm)
	if err != nil {
		return err
	}
	id, err := r.create(ctx, m, models.Term{
		Taxonomy:    "category",
		Name:        "Uncategorized",
		Slug:        slug.Make("Uncategorized"),
		Description: "Posts without a category",
	})
	if err != nil {
		return err
	}
	r.result.DefaultTermId = id
	return nil
}

func (r *run) createMenuLocations(ctx context.Context) error {
	m, err := r.model(ctx, schema.EntityMenuLocation)
	if err != nil {
		return err
	}
	for _, loc := range menuLocations() {
		id, err := r.create(ctx, m, loc)
		if err != nil {
			return err
		}
		r.result.LocationIds[loc.Name] = id
	}
	return nil
}

func (r *run) createMediaFolder(ctx context.Context) error {
	m, err := r.model(ctx, schema.EntityMediaFolder)
	if err != nil {
		return err
	}
	id, err := r.create(ctx, m, models.MediaFolder{Name: "Uploads", Slug: slug.Make("Uploads")})
	if err != nil {
		return err
	}
	r.result.MediaFolderId = id
	return nil
}

// ensureCollections binds every site entity so each collection and its indexes exist, even
// the ones nothing has been written to.
func (r *run) ensureCollections(ctx context.Context) error {
	for _, def := range schema.ForScope(schema.ScopeSite) {
		m, err := r.model(ctx, def.Name)
		if err != nil {
			return err
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			return err
		}
		r.result.Collections = append(r.result.Collections, def.Collection)
	}
	return nil
}

func (r *run) createAuthorContent(ctx context.Context) error {
	author := r.opts.AuthorID.String()
	published := r.b.now()

	pages, err := r.model(ctx, schema.EntityPage)
	if err != nil {
		return err
	}
	var pageOrder []string
	for i, p := range seedPages(r.opts.SiteTitle) {
		id, err := r.create(ctx, pages, models.Page{
			Title:       p.title,
			Slug:        p.slug,
			Content:     p.content,
			Status:      "published",
			AuthorId:    models.Ptr(author),
			MenuOrder:   i,
			PublishedAt: models.Ptr(published),
		})
		if err != nil {
			return err
		}
		r.result.PageIds[p.slug] = id
		pageOrder = append(pageOrder, p.slug)
	}

	posts, err := r.model(ctx, schema.EntityPost)
	if err != nil {
		return err
	}
	var categories []string
	if r.result.DefaultTermId != "" {
		categories = []string{r.result.DefaultTermId}
	}
	postId, err := r.create(ctx, posts, models.Post{
		Title:       "Hello World",
		Slug:        slug.Make("Hello World"),
		Content:     helloWorldContent,
		Status:      "published",
		AuthorId:    models.Ptr(author),
		CategoryIds: categories,
		PublishedAt: models.Ptr(published),
	})
	if err != nil {
		return err
	}
	r.result.PostIds = append(r.result.PostIds, postId)

	headerId, err := r.createMenu(ctx, "Header Menu", "header")
	if err != nil {
		return err
	}
	footerId, err := r.createMenu(ctx, "Footer Menu", "footer")
	if err != nil {
		return err
	}

	items, err := r.model(ctx, schema.EntityMenuItem)
	if err != nil {
		return err
	}
	pageTitles := map[string]string{}
	for _, p := range seedPages(r.opts.SiteTitle) {
		pageTitles[p.slug] = p.title
	}
	var header []models.MenuItem
	for _, s := range pageOrder {
		header = append(header, models.MenuItem{
			MenuId: headerId,
			Label:  pageTitles[s],
			Type:   models.MenuItemPage,
			PageId: models.Ptr(r.result.PageIds[s]),
		})
	}
	header = append(header, models.MenuItem{MenuId: headerId, Label: "Blog", Type: models.MenuItemCustom, URL: models.Ptr(blogURL)})
	var footer []models.MenuItem
	for _, l := range footerLinks {
		footer = append(footer, models.MenuItem{MenuId: footerId, Label: l.label, Type: models.MenuItemCustom, URL: models.Ptr(l.url)})
	}
	for _, group := range [][]models.MenuItem{header, footer} {
		for i, item := range group {
			item.Order = i
			id, err := r.create(ctx, items, item)
			if err != nil {
				return err
			}
			r.result.MenuItemIds = append(r.result.MenuItemIds, id)
		}
	}
	return nil
}

// createMenu creates a menu and assigns it to its location.
func (r *run) createMenu(ctx context.Context, name, location string) (string, error) {
	menus, err := r.model(ctx, schema.EntityMenu)
	if err != nil {
		return "", err
	}
	id, err := r.create(ctx, menus, models.Menu{Name: name, Slug: slug.Make(name), Location: models.Ptr(location)})
	if err != nil {
		return "", err
	}
	r.result.MenuIds[location] = id

	if locId, ok := r.result.LocationIds[location]; ok {
		locations, err := r.model(ctx, schema.EntityMenuLocation)
		if err != nil {
			return "", err
		}
		if err := locations.UpdateByID(ctx, locId, map[string]any{"menuId": id}); err != nil {
			return "", err
		}
		r.result.Committed++
	}
	return id, nil
}
