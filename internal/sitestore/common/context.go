// Description: This file contains helpers to carry the acting site and user through a context.
// The identity/session collaborator sets them; the data layer only reads them.
package common

import (
	"context"

	"github.com/tansive/sitestore/pkg/types"
)

type ctxSiteIdKeyType string

const ctxSiteIdKey ctxSiteIdKeyType = "SiteStoreSiteId"

type ctxUserIdKeyType string

const ctxUserIdKey ctxUserIdKeyType = "SiteStoreUserId"

// SetSiteIdInContext sets the site ID in the provided context.
func SetSiteIdInContext(ctx context.Context, siteId types.SiteId) context.Context {
	return context.WithValue(ctx, ctxSiteIdKey, siteId)
}

// SiteIdFromContext retrieves the site ID from the provided context.
// The second result is false when no site was set.
func SiteIdFromContext(ctx context.Context) (types.SiteId, bool) {
	siteId, ok := ctx.Value(ctxSiteIdKey).(types.SiteId)
	return siteId, ok
}

// SetUserIdInContext sets the acting user in the provided context.
func SetUserIdInContext(ctx context.Context, userId types.UserId) context.Context {
	return context.WithValue(ctx, ctxUserIdKey, userId)
}

// UserIdFromContext retrieves the acting user, or "" when none is set.
func UserIdFromContext(ctx context.Context) types.UserId {
	if userId, ok := ctx.Value(ctxUserIdKey).(types.UserId); ok {
		return userId
	}
	return ""
}
