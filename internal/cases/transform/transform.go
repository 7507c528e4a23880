// Package transform maps between the case form model and the backend KYC
// Master Record. Both directions are total: missing optional fields resolve
// to null or a documented default, never a panic.
//
// The mapping is deliberately asymmetric. riskTier and assignedUser exist
// only on the form (placeholder defaults on the way in, dropped on the way
// out), relationship.type and the rule-set outcome are fixed constants
// pending real business rules, and only the companies-registry enrichment
// sub-record carries an address.
package transform

import (
	"encoding/json"
	"strings"
	"time"

	"casegate/internal/cases/models"
)

// FormToRecord produces the backend record payload for a submitted case
// form. now stamps every enrichment checkedAt.
func FormToRecord(form models.CaseForm, now time.Time) models.Record {
	be := form.BEForm

	subType := be.CustomerType
	role := models.Role{Primary: models.RoleClient}
	if be.RoleType != "" {
		role.Primary = be.RoleType
	}
	if subType != "" {
		role.SubType = &subType
	}

	systemRequired := form.BusinessUnit
	if systemRequired == "" {
		systemRequired = models.DefaultSystemRequired
	}

	return models.Record{
		CaseID:    form.CaseID,
		ClientRef: form.ClientRef,
		Status:    form.Status,
		Version:   1,
		Entity: models.Entity{
			LegalName:    be.LegalName,
			Jurisdiction: be.Country,
			ContactEmail: be.StatementEmail,
		},
		Relationship: models.Relationship{
			// No form field supplies the relationship type yet.
			Type:           "NEW",
			SystemRequired: systemRequired,
		},
		Role: role,
		RulesOutcome: models.RulesOutcome{
			RuleSetID: models.DefaultRuleSetID,
			RequiredDocuments: []string{
				"Certificate of Incorporation",
				"Proof of Address",
				"ID Verification",
			},
			OptionalDocuments: []string{
				"Financial Statements",
				"Bank Reference",
			},
		},
		Documents: []json.RawMessage{},
		Enrichment: models.Enrichment{
			CompaniesHouse: models.CompaniesHouseCheck{
				Status:            upperStatus(form.AutomationResults.CompaniesHouse.Status),
				CompanyNumber:     nilIfEmpty(be.RegistrationNumber),
				CompanyStatus:     nil,
				RegisteredAddress: registeredAddress(be),
				CheckedAt:         now,
			},
			FCA: models.FCACheck{
				Status:    upperStatus(form.AutomationResults.FCA.Status),
				CheckedAt: now,
			},
			DNB: models.DNBCheck{
				Status:    upperStatus(form.AutomationResults.DAndB.Status),
				CheckedAt: now,
			},
			LexisNexis: models.LexisNexisCheck{
				Status:    upperStatus(form.AutomationResults.LexisNexis.Status),
				CheckedAt: now,
			},
		},
		Flags:         []json.RawMessage{},
		Approvals:     []json.RawMessage{},
		Decision:      models.Decision{},
		ChangeHistory: []json.RawMessage{},
	}
}

// RecordToForm populates an edit form from a fetched record. riskTier and
// assignedUser get placeholder values: the backend has no such fields.
func RecordToForm(record models.Record) models.CaseForm {
	ch := record.Enrichment.CompaniesHouse

	var line1, line2p, city, postcode string
	var addrLine2 *string
	if ch.RegisteredAddress != nil {
		line1 = ch.RegisteredAddress.Line1
		city = ch.RegisteredAddress.City
		postcode = ch.RegisteredAddress.Postcode
		if ch.RegisteredAddress.Line2 != nil {
			line2p = *ch.RegisteredAddress.Line2
			addrLine2 = &line2p
		}
	}

	customerType := "Medium"
	if record.Role.SubType != nil && *record.Role.SubType != "" {
		customerType = *record.Role.SubType
	}

	attachments := record.Documents
	if attachments == nil {
		attachments = []json.RawMessage{}
	}

	return models.CaseForm{
		CaseID:       record.CaseID,
		ClientRef:    record.ClientRef,
		EntityName:   record.Entity.LegalName,
		Status:       record.Status,
		RiskTier:     models.PlaceholderRiskTier,
		AssignedUser: models.PlaceholderAssignedUser,
		BusinessUnit: record.Relationship.SystemRequired,
		BEForm: models.BusinessEntityForm{
			LegalName:             record.Entity.LegalName,
			TradingName:           record.Entity.LegalName,
			Country:               record.Entity.Jurisdiction,
			RoleType:              record.Role.Primary,
			AddressLine1:          line1,
			AddressLine2:          addrLine2,
			City:                  city,
			Postcode:              postcode,
			RegistrationNumber:    deref(ch.CompanyNumber),
			CustomerType:          customerType,
			StatementEmail:        record.Entity.ContactEmail,
			CreditControllerEmail: record.Entity.ContactEmail,
			BankDetailsRequired:   false,
		},
		AutomationResults: models.AutomationResults{
			CompaniesHouse: models.AutomationResult{Status: lowerStatus(ch.Status)},
			FCA:            models.AutomationResult{Status: lowerStatus(record.Enrichment.FCA.Status)},
			DAndB:          models.AutomationResult{Status: lowerStatus(record.Enrichment.DNB.Status)},
			LexisNexis:     models.AutomationResult{Status: lowerStatus(record.Enrichment.LexisNexis.Status)},
		},
		Attachments: attachments,
	}
}

// registeredAddress is only synthesized when the form carries an address
// line 1; the backend treats a partial address as worse than none.
func registeredAddress(be models.BusinessEntityForm) *models.RegisteredAddress {
	if be.AddressLine1 == "" {
		return nil
	}
	return &models.RegisteredAddress{
		Line1:    be.AddressLine1,
		Line2:    be.AddressLine2,
		City:     be.City,
		Postcode: be.Postcode,
		Country:  be.Country,
	}
}

func upperStatus(s string) string {
	if s == "" {
		return models.EnrichmentStatusPending
	}
	return strings.ToUpper(s)
}

func lowerStatus(s string) string {
	if s == "" {
		return "pending"
	}
	return strings.ToLower(s)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
