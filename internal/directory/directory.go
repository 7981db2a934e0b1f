// Package directory holds the collaborator records permit packages point at:
// customers, the counties permits are filed with, and contractors.
package directory

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("directory: record not found")

type Customer struct {
	ID        string    `json:"id" bson:"id"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email,omitempty" bson:"email,omitempty"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// County describes a permitting authority. OfflineOnly marks counties with
// no electronic intake; their packages are flagged for offline submission.
type County struct {
	ID          string    `json:"id" bson:"id"`
	Name        string    `json:"name" bson:"name"`
	State       string    `json:"state,omitempty" bson:"state,omitempty"`
	PortalURL   string    `json:"portalUrl,omitempty" bson:"portalUrl,omitempty"`
	OfflineOnly bool      `json:"offlineOnly" bson:"offlineOnly"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

type Contractor struct {
	ID            string    `json:"id" bson:"id"`
	Name          string    `json:"name" bson:"name"`
	LicenseNumber string    `json:"licenseNumber,omitempty" bson:"licenseNumber,omitempty"`
	Email         string    `json:"email,omitempty" bson:"email,omitempty"`
	Phone         string    `json:"phone,omitempty" bson:"phone,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}
