package bootstrap

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/models"
	"github.com/tansive/sitestore/internal/sitestore/db/schema"
	"github.com/tansive/sitestore/pkg/types"
)

// StepSiteRecord is the step that writes the site directory entry in the global database.
const StepSiteRecord = "site-record"

// SiteInfo is the directory entry of a new site.
type SiteInfo struct {
	Id          types.SiteId `validate:"gt=0"`
	Name        string       `validate:"required,max=64"`
	DisplayName string       `validate:"required,max=256"`
	Domain      string       `validate:"required,hostname|fqdn"`
	OwnerId     types.UserId `validate:"max=128"`
}

// RegisterSite records the site in the global directory and then bootstraps its database.
// A failure after the directory entry was written is reported as partial.
func (b *Bootstrapper) RegisterSite(ctx context.Context, site SiteInfo, opts Options) (*Result, error) {
	if err := b.validate.Struct(site); err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid site", err)
	}
	if opts.SiteTitle == "" {
		opts.SiteTitle = site.DisplayName
	}
	if err := b.validate.Struct(opts); err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid bootstrap options", err)
	}

	sites, err := b.factory.Global(ctx, schema.EntitySite)
	if err != nil {
		return nil, &StepError{SiteId: site.Id, Step: StepSiteRecord, Err: err}
	}
	record := models.Site{
		SiteId:      site.Id,
		Name:        site.Name,
		DisplayName: site.DisplayName,
		Domain:      site.Domain,
		Active:      true,
	}
	if !site.OwnerId.IsEmpty() {
		record.OwnerId = models.Ptr(site.OwnerId.String())
	}
	if _, err := sites.Create(ctx, record); err != nil {
		return nil, &StepError{SiteId: site.Id, Step: StepSiteRecord, Err: err}
	}
	log.Ctx(ctx).Info().Str("site_id", site.Id.String()).Str("domain", site.Domain).Msg("site registered")

	result, err := b.Run(ctx, site.Id, opts)
	if err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			// the directory entry is committed too
			stepErr.Committed++
			return result, stepErr
		}
		return result, &StepError{SiteId: site.Id, Step: StepContentTypes, Committed: 1, Err: err}
	}
	result.Committed++
	return result, nil
}
