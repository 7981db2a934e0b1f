package permit

import "time"

// Status is the lifecycle state of a permit package. States form a total
// order and only ever move forward; a downgrade requires an administrative
// action outside this service.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusBuilding           Status = "building"
	StatusReadyForBilling    Status = "ready_for_billing"
	StatusSubmittedToBilling Status = "submitted_to_billing"
)

var statusOrder = map[Status]int{
	StatusDraft:              0,
	StatusBuilding:           1,
	StatusReadyForBilling:    2,
	StatusSubmittedToBilling: 3,
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// AtOrPast reports whether s has reached t in the lifecycle order.
func (s Status) AtOrPast(t Status) bool {
	return statusOrder[s] >= statusOrder[t]
}

// Package is a permit package: the bundle of documentation collected for one
// property/permit application, tracked through the billing-readiness
// workflow. Status is mutated only through the lifecycle gate operations.
type Package struct {
	ID                   string     `json:"id" bson:"id"`
	CustomerID           string     `json:"customerId" bson:"customerId"`
	CountyID             string     `json:"countyId" bson:"countyId"`
	ContractorID         string     `json:"contractorId,omitempty" bson:"contractorId,omitempty"`
	Title                string     `json:"title" bson:"title"`
	PermitType           string     `json:"permitType" bson:"permitType"`
	PropertyAddress      string     `json:"propertyAddress" bson:"propertyAddress"`
	Status               Status     `json:"status" bson:"status"`
	OfflineSubmission    bool       `json:"offlineSubmission" bson:"offlineSubmission"`
	ReadyForBillingAt    *time.Time `json:"readyForBillingAt,omitempty" bson:"readyForBillingAt,omitempty"`
	ReadyForBillingBy    string     `json:"readyForBillingBy,omitempty" bson:"readyForBillingBy,omitempty"`
	SubmittedToBillingAt *time.Time `json:"submittedToBillingAt,omitempty" bson:"submittedToBillingAt,omitempty"`
	SubmittedToBillingBy string     `json:"submittedToBillingBy,omitempty" bson:"submittedToBillingBy,omitempty"`
	CreatedAt            time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Document is one uploaded file attached to a permit package. VerifiedComplete
// is a manual attestation and is cleared whenever the underlying file is
// replaced.
type Document struct {
	ID               string     `json:"id" bson:"id"`
	PackageID        string     `json:"packageId" bson:"packageId"`
	RequirementID    string     `json:"requirementId,omitempty" bson:"requirementId,omitempty"`
	Category         string     `json:"category" bson:"category"`
	FileName         string     `json:"fileName" bson:"fileName"`
	SizeBytes        int64      `json:"sizeBytes" bson:"sizeBytes"`
	ContentType      string     `json:"contentType" bson:"contentType"`
	StorageKey       string     `json:"storageKey" bson:"storageKey"`
	UploadedBy       string     `json:"uploadedBy,omitempty" bson:"uploadedBy,omitempty"`
	VerifiedComplete bool       `json:"verifiedComplete" bson:"verifiedComplete"`
	VerifiedBy       string     `json:"verifiedBy,omitempty" bson:"verifiedBy,omitempty"`
	VerifiedAt       *time.Time `json:"verifiedAt,omitempty" bson:"verifiedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// FileInfo carries the stored-object metadata for a document upload.
type FileInfo struct {
	FileName    string
	SizeBytes   int64
	ContentType string
	StorageKey  string
}

// Requirement is a document checklist entry: one named category of document
// a package of a given kind is expected to collect. Requirements are
// templates and are read-only to the lifecycle gate.
type Requirement struct {
	ID        string `json:"id" yaml:"id"`
	Category  string `json:"category" yaml:"category"`
	Label     string `json:"label" yaml:"label"`
	Mandatory bool   `json:"mandatory" yaml:"mandatory"`
}

// BillingSubmission records a package handed to billing. At most one exists
// per package; the record is appended in the same atomic step that moves the
// package to submitted_to_billing.
type BillingSubmission struct {
	ID          string    `json:"id" bson:"id"`
	PackageID   string    `json:"packageId" bson:"packageId"`
	SubmittedBy string    `json:"submittedBy" bson:"submittedBy"`
	SubmittedAt time.Time `json:"submittedAt" bson:"submittedAt"`
}
