package dbmanager

import "github.com/tansive/sitestore/pkg/types"

const (
	globalDatabaseSuffix = "global"
	siteDatabaseInfix    = "site"
)

// GlobalDatabaseName returns the name of the shared database holding cross-site entities.
func GlobalDatabaseName(prefix string) string {
	return prefix + globalDatabaseSuffix
}

// SiteDatabaseName returns "{prefix}site{id}".
func SiteDatabaseName(prefix string, id types.SiteId) string {
	return prefix + siteDatabaseInfix + id.String()
}

// DatabaseName maps a site id to its database. The global site id maps to the global database.
// The mapping is injective: no two ids share a name and no site shares the global name.
func DatabaseName(prefix string, id types.SiteId) string {
	if id.IsGlobal() {
		return GlobalDatabaseName(prefix)
	}
	return SiteDatabaseName(prefix, id)
}
