package types

import "strconv"

// SiteId is the numeric identity of a site. The zero value addresses the global scope.
type SiteId int64

// UserId identifies an account in the global database.
type UserId string

const GlobalSiteId SiteId = 0

func (s SiteId) String() string {
	return strconv.FormatInt(int64(s), 10)
}

func (s SiteId) IsGlobal() bool {
	return s == GlobalSiteId
}

// ParseSiteId parses the decimal form produced by String.
func ParseSiteId(s string) (SiteId, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return SiteId(n), nil
}

func (u UserId) IsEmpty() bool {
	return u == ""
}

func (u UserId) String() string {
	return string(u)
}
