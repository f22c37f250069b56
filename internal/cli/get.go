package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tansive/sitestore/internal/sitestore/common"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
	"github.com/tansive/sitestore/internal/sitestore/db/schema"
	"github.com/tansive/sitestore/pkg/types"
)

func newGetCmd(a *app) *cobra.Command {
	var (
		site    int64
		output  string
		filters []string
		sortBy  string
		limit   int64
		skip    int64
	)
	cmd := &cobra.Command{
		Use:   "get <Entity>",
		Short: "List the documents of an entity",
		Long: `List the documents of an entity. Site entities need --site; global entities
always read the global database. Filters are exact matches on a field, nested
fields use dotted paths. Values that parse as JSON are compared as such.

Example:
  sitectl get Page --site 42 --filter status=published
  sitectl get Setting --site 42 --filter group=general -o json
  sitectl get Site`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := schema.Lookup(args[0])
			if err != nil {
				return err
			}
			filter, err := parseFilters(filters)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if def.Scope == schema.ScopeSite {
				ctx = common.SetSiteIdInContext(ctx, types.SiteId(site))
			}
			m, err := a.factory.FromContext(ctx, def.Name)
			if err != nil {
				return err
			}
			opts := dbmanager.FindOptions{Limit: limit, Skip: skip}
			if sortBy != "" {
				opts.Sort = []dbmanager.SortField{{
					Field:      strings.TrimPrefix(sortBy, "-"),
					Descending: strings.HasPrefix(sortBy, "-"),
				}}
			}
			docs, err := m.Find(ctx, filter, opts)
			if err != nil {
				return err
			}
			if docs == nil {
				docs = []dbmanager.Document{}
			}
			return a.printOutput(cmd.OutOrStdout(), output, docs)
		},
	}
	cmd.Flags().Int64VarP(&site, "site", "s", 0, "Site id for site entities")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: yaml or json")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Exact match filter as field=value, repeatable")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Field to sort by, prefix with - for descending")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum number of documents")
	cmd.Flags().Int64Var(&skip, "skip", 0, "Number of documents to skip")
	return cmd
}

// parseFilters turns field=value pairs into an equality filter.
func parseFilters(pairs []string) (dbmanager.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := dbmanager.Filter{}
	for _, p := range pairs {
		field, raw, ok := strings.Cut(p, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q, expected field=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		filter[field] = v
	}
	return filter, nil
}

type entityInfo struct {
	Name       string `json:"name"`
	Scope      string `json:"scope"`
	Collection string `json:"collection"`
	Fields     int    `json:"fields"`
}

func newEntitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the registered entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []entityInfo
			for _, name := range schema.Names() {
				def, err := schema.Lookup(name)
				if err != nil {
					return err
				}
				infos = append(infos, entityInfo{
					Name:       def.Name,
					Scope:      def.Scope.String(),
					Collection: def.Collection,
					Fields:     len(def.Fields),
				})
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), infos)
			}
			for _, e := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-7s %s\n", e.Name, e.Scope, e.Collection)
			}
			return nil
		},
	}
}
