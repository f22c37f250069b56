// Package models has typed views of the entity documents. They marshal to the shape the
// schema package validates; fields the caller leaves out get their defaults on create.
package models

import (
	"time"

	"github.com/tansive/sitestore/pkg/types"
)

// Base carries the fields every stored document has. Create assigns all three.
type Base struct {
	Id        string    `json:"_id,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type User struct {
	Base
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	DisplayName   string     `json:"displayName,omitempty"`
	PasswordHash  string     `json:"passwordHash,omitempty"`
	Status        string     `json:"status,omitempty"`
	RoleIds       []string   `json:"roleIds,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

type Role struct {
	Base
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	IsSystem     bool     `json:"isSystem"`
}

// Site is the directory record of one tenant.
type Site struct {
	Base
	SiteId      types.SiteId `json:"siteId"`
	Name        string       `json:"name"`
	DisplayName string       `json:"displayName"`
	Domain      string       `json:"domain"`
	Active      bool         `json:"active"`
	OwnerId     *string      `json:"ownerId,omitempty"`
}

// SiteUser assigns a global user a role on one site.
type SiteUser struct {
	Base
	SiteId types.SiteId `json:"siteId"`
	UserId string       `json:"userId"`
	RoleId string       `json:"roleId"`
	Status string       `json:"status,omitempty"`
}
