// Package models defines the two representations a case lives in: the KYC
// Master Record owned by the backend record service, and the case form model
// the UI edits. The transform package maps between them.
package models

import (
	"encoding/json"
	"time"
)

// Status is the ordered case workflow stage.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusSubmitted          Status = "SUBMITTED"
	StatusEnriched           Status = "ENRICHED"
	StatusUnderReview        Status = "UNDER_REVIEW"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusOnHold             Status = "ON_HOLD"
	StatusAwaitingExternal   Status = "AWAITING_EXTERNAL_RESPONSE"
	StatusOnboardingComplete Status = "ONBOARDING_COMPLETE"
)

// Role.Primary comes from a closed set.
const (
	RoleClient        = "CLIENT"
	RoleUnderwriter   = "UNDERWRITER"
	RoleBroker        = "BROKER"
	RoleReinsurer     = "REINSURER"
	RoleCoverholder   = "COVERHOLDER"
	RoleManagingAgent = "MANAGING_AGENT"
)

// Record is the backend KYC Master Record. Field names follow the backend
// schema exactly; the collections are raw because this layer forwards them
// without interpreting their contents.
type Record struct {
	CaseID        string            `json:"caseId"`
	ClientRef     string            `json:"clientRef"`
	Status        Status            `json:"status"`
	Version       int               `json:"version"`
	Entity        Entity            `json:"entity"`
	Relationship  Relationship      `json:"relationship"`
	Role          Role              `json:"role"`
	RulesOutcome  RulesOutcome      `json:"rulesOutcome"`
	Documents     []json.RawMessage `json:"documents"`
	Enrichment    Enrichment        `json:"enrichment"`
	Flags         []json.RawMessage `json:"flags"`
	Approvals     []json.RawMessage `json:"approvals"`
	Decision      Decision          `json:"decision"`
	ChangeHistory []json.RawMessage `json:"changeHistory"`
}

type Entity struct {
	LegalName    string `json:"legalName"`
	Jurisdiction string `json:"jurisdiction"`
	ContactEmail string `json:"contactEmail"`
}

type Relationship struct {
	Type           string `json:"type"`
	SystemRequired string `json:"systemRequired"`
}

type Role struct {
	Primary string  `json:"primary"`
	SubType *string `json:"subType,omitempty"`
}

type RulesOutcome struct {
	RuleSetID         string   `json:"ruleSetId"`
	RequiredDocuments []string `json:"requiredDocuments"`
	OptionalDocuments []string `json:"optionalDocuments"`
}

// Enrichment holds one status sub-record per external source. The backend
// schema requires the full object: all four keys must be present on every
// record, with status PENDING when a source has not been checked.
type Enrichment struct {
	CompaniesHouse CompaniesHouseCheck `json:"companiesHouse"`
	FCA            FCACheck            `json:"fca"`
	DNB            DNBCheck            `json:"dnb"`
	LexisNexis     LexisNexisCheck     `json:"lexisNexis"`
}

type CompaniesHouseCheck struct {
	Status            string             `json:"status"`
	CompanyNumber     *string            `json:"companyNumber"`
	CompanyStatus     *string            `json:"companyStatus"`
	RegisteredAddress *RegisteredAddress `json:"registeredAddress"`
	CheckedAt         time.Time          `json:"checkedAt"`
}

type FCACheck struct {
	Status              string    `json:"status"`
	FirmReferenceNumber *string   `json:"firmReferenceNumber"`
	Regulated           *bool     `json:"regulated"`
	CheckedAt           time.Time `json:"checkedAt"`
}

type DNBCheck struct {
	Status          string    `json:"status"`
	DunsNumber      *string   `json:"dunsNumber"`
	ConfidenceScore *float64  `json:"confidenceScore"`
	CheckedAt       time.Time `json:"checkedAt"`
}

type LexisNexisCheck struct {
	Status       string    `json:"status"`
	MatchesFound *int      `json:"matchesFound"`
	CheckedAt    time.Time `json:"checkedAt"`
}

type RegisteredAddress struct {
	Line1    string  `json:"line1"`
	Line2    *string `json:"line2,omitempty"`
	City     string  `json:"city"`
	Postcode string  `json:"postcode"`
	Country  string  `json:"country"`
}

// Decision is all-null until an outcome is recorded.
type Decision struct {
	Outcome   *string    `json:"outcome"`
	DecidedBy *string    `json:"decidedBy"`
	DecidedAt *time.Time `json:"decidedAt"`
	Rationale *string    `json:"rationale"`
}

// EnrichmentStatusPending is the status every source starts in.
const EnrichmentStatusPending = "PENDING"
