package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/sitestore/internal/sitestore/bootstrap"
	"github.com/tansive/sitestore/internal/sitestore/common"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/modelfactory"
	"github.com/tansive/sitestore/pkg/types"
)

// siteScope maps --site to a scope. Site 0 is the global database.
func siteScope(id int64) (modelfactory.Scope, error) {
	switch {
	case id < 0:
		return modelfactory.Scope{}, dberror.ErrInvalidSiteID.Msg(fmt.Sprintf("invalid site id %d", id))
	case types.SiteId(id).IsGlobal():
		return modelfactory.GlobalScope(), nil
	}
	return modelfactory.SiteScope(types.SiteId(id)), nil
}

func newDbNameCmd(a *app) *cobra.Command {
	var site int64
	cmd := &cobra.Command{
		Use:   "dbname",
		Short: "Print the database name a site resolves to",
		Long: `Print the database name a site resolves to. Site 0 is the global database.

Example:
  sitectl dbname --site 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := siteScope(site)
			if err != nil {
				return err
			}
			name := a.factory.DatabaseName(scope)
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]string{"site": types.SiteId(site).String(), "database": name})
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	cmd.Flags().Int64VarP(&site, "site", "s", 0, "Site id, 0 for the global database")
	return cmd
}

func newCollectionsCmd(a *app) *cobra.Command {
	var site int64
	var attempts uint
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List the collections of a site database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := siteScope(site)
			if err != nil {
				return err
			}
			if attempts == 0 {
				return fmt.Errorf("--wait must be at least 1")
			}
			conn, err := a.waitForDatabase(cmd.Context(), a.factory.DatabaseName(scope), attempts)
			if err != nil {
				return err
			}
			names, err := conn.ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), names)
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&site, "site", "s", 0, "Site id, 0 for the global database")
	cmd.Flags().UintVar(&attempts, "wait", 5, "Attempts to reach the database before giving up")
	return cmd
}

type bootstrapFlags struct {
	site       int64
	author     string
	title      string
	url        string
	adminEmail string
	attempts   uint
}

func (f *bootstrapFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&f.site, "site", "s", 0, "Site id to bootstrap")
	cmd.Flags().StringVarP(&f.author, "author", "a", "", "User the seed pages and post are attributed to")
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Site title, defaults to the configured title")
	cmd.Flags().StringVar(&f.url, "url", "", "Public address of the site")
	cmd.Flags().StringVar(&f.adminEmail, "admin-email", "", "Administration email address")
	cmd.Flags().UintVar(&f.attempts, "wait", 5, "Attempts to reach the site database before giving up")
	_ = cmd.MarkFlagRequired("site")
}

func (f *bootstrapFlags) options() bootstrap.Options {
	return bootstrap.Options{
		SiteTitle:  f.title,
		SiteURL:    f.url,
		AdminEmail: f.adminEmail,
	}
}

func newBootstrapCmd(a *app) *cobra.Command {
	var f bootstrapFlags
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the baseline content of a new site",
		Long: `Create the baseline content of a new site: content types, taxonomies, settings,
the default category, menu locations and the uploads folder. With --author the
seed pages, the first post and the header and footer menus are created too.

Running it twice for the same site duplicates the baseline.

Example:
  sitectl bootstrap --site 42 --author 0190f6c1-5d1e-7c2e-9b1a-1f4d2c3b4a59 --title "Acme"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.site <= 0 {
				return dberror.ErrInvalidSiteID.Msg("bootstrap needs a site id greater than 0")
			}
			if f.attempts == 0 {
				return fmt.Errorf("--wait must be at least 1")
			}
			ctx := common.SetSiteIdInContext(cmd.Context(), types.SiteId(f.site))
			if f.author != "" {
				ctx = common.SetUserIdInContext(ctx, types.UserId(f.author))
			}
			if _, err := a.waitForDatabase(ctx, a.factory.DatabaseName(modelfactory.SiteScope(types.SiteId(f.site))), f.attempts); err != nil {
				return err
			}
			result, err := a.bootstrapper().Run(ctx, types.SiteId(f.site), f.options())
			if err != nil {
				if result != nil {
					log.Ctx(ctx).Warn().Int("committed", result.Committed).Msg("site left partially bootstrapped")
				}
				return err
			}
			return a.printResult(cmd, result)
		},
	}
	f.register(cmd)
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var f bootstrapFlags
	var site bootstrap.SiteInfo
	var owner string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Record a new site in the global directory and bootstrap it",
		Long: `Record a new site in the global directory and bootstrap its database.

Example:
  sitectl register --site 42 --name acme --display-name "Acme" --domain acme.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.attempts == 0 {
				return fmt.Errorf("--wait must be at least 1")
			}
			ctx := cmd.Context()
			if f.author != "" {
				ctx = common.SetUserIdInContext(ctx, types.UserId(f.author))
			}
			if _, err := a.waitForDatabase(ctx, a.factory.DatabaseName(modelfactory.GlobalScope()), f.attempts); err != nil {
				return err
			}
			site.Id = types.SiteId(f.site)
			site.OwnerId = types.UserId(owner)
			result, err := a.bootstrapper().RegisterSite(ctx, site, f.options())
			if err != nil {
				return err
			}
			return a.printResult(cmd, result)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&site.Name, "name", "", "Short unique name of the site")
	cmd.Flags().StringVar(&site.DisplayName, "display-name", "", "Display name, also the default title")
	cmd.Flags().StringVar(&site.Domain, "domain", "", "Domain the site is served on")
	cmd.Flags().StringVar(&owner, "owner", "", "Owning user id")
	return cmd
}

type bootstrapSummary struct {
	Site          string            `json:"site"`
	Database      string            `json:"database"`
	Committed     int               `json:"committed"`
	ContentTypes  map[string]string `json:"contentTypes"`
	Taxonomies    map[string]string `json:"taxonomies"`
	Settings      int               `json:"settings"`
	DefaultTerm   string            `json:"defaultTerm"`
	MediaFolder   string            `json:"mediaFolder"`
	MenuLocations map[string]string `json:"menuLocations"`
	Pages         map[string]string `json:"pages,omitempty"`
	Posts         []string          `json:"posts,omitempty"`
	Menus         map[string]string `json:"menus,omitempty"`
	MenuItems     int               `json:"menuItems"`
	Collections   []string          `json:"collections"`
}

func (a *app) printResult(cmd *cobra.Command, r *bootstrap.Result) error {
	return a.printOutput(cmd.OutOrStdout(), "", bootstrapSummary{
		Site:          r.SiteId.String(),
		Database:      a.factory.DatabaseName(modelfactory.SiteScope(r.SiteId)),
		Committed:     r.Committed,
		ContentTypes:  r.ContentTypeIds,
		Taxonomies:    r.TaxonomyIds,
		Settings:      len(r.SettingIds),
		DefaultTerm:   r.DefaultTermId,
		MediaFolder:   r.MediaFolderId,
		MenuLocations: r.LocationIds,
		Pages:         r.PageIds,
		Posts:         r.PostIds,
		Menus:         r.MenuIds,
		MenuItems:     len(r.MenuItemIds),
		Collections:   r.Collections,
	})
}
