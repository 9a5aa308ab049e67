package domain

import (
	"time"

	"github.com/google/uuid"
)

// Site is a single video website served by the application.
type Site struct {
	ID     uuid.UUID
	Name   string
	Domain string
}

// Owner is a site administrator. Superusers own the site and receive
// tier notifications.
type Owner struct {
	ID          uuid.UUID
	SiteID      uuid.UUID
	Email       string
	Name        string
	IsSuperuser bool
	CreatedAt   time.Time
}

// DisplayName returns the owner's name or email if name is empty.
func (o Owner) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Email
}

// ProvisionSiteParams contains the parameters for setting up a new site.
type ProvisionSiteParams struct {
	Name            string
	Domain          string
	TierSlug        string
	EnforcePayments bool
	OwnerEmail      string
	OwnerName       string
}
