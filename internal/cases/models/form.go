package models

import "encoding/json"

// CaseForm is the on-screen case form model. It is a superset of the
// record's editable entity fields plus UI-only fields (riskTier,
// assignedUser) that have no backend counterpart.
type CaseForm struct {
	CaseID            string             `json:"caseId"`
	ClientRef         string             `json:"clientRef"`
	EntityName        string             `json:"entityName"`
	Status            Status             `json:"status"`
	RiskTier          string             `json:"riskTier"`
	AssignedUser      string             `json:"assignedUser"`
	BusinessUnit      string             `json:"businessUnit"`
	BEForm            BusinessEntityForm `json:"beForm"`
	AutomationResults AutomationResults  `json:"automationResults"`
	Attachments       []json.RawMessage  `json:"attachments"`
}

// BusinessEntityForm is the nested business-entity sub-form.
type BusinessEntityForm struct {
	LegalName             string  `json:"legalName"`
	TradingName           string  `json:"tradingName"`
	Country               string  `json:"country"`
	RoleType              string  `json:"roleType"`
	AddressLine1          string  `json:"addressLine1"`
	AddressLine2          *string `json:"addressLine2"`
	City                  string  `json:"city"`
	Postcode              string  `json:"postcode"`
	RegistrationNumber    string  `json:"registrationNumber"`
	CustomerType          string  `json:"customerType"`
	StatementEmail        string  `json:"statementEmail"`
	CreditControllerEmail string  `json:"creditControllerEmail"`
	BankName              *string `json:"bankName"`
	BankAccountNumber     *string `json:"bankAccountNumber"`
	BankSortCode          *string `json:"bankSortCode"`
	BankDetailsRequired   bool    `json:"bankDetailsRequired"`
}

// CustomerType values accepted by the sub-form.
var CustomerTypes = []string{"Micro", "Small", "Medium", "Large", "Consumer"}

// AutomationResults mirrors the per-source enrichment status as the form
// tracks it. Note the dAndB key: the form and the record spell the D&B
// source differently.
type AutomationResults struct {
	CompaniesHouse AutomationResult `json:"companiesHouse"`
	FCA            AutomationResult `json:"fca"`
	DAndB          AutomationResult `json:"dAndB"`
	LexisNexis     AutomationResult `json:"lexisNexis"`
}

type AutomationResult struct {
	Status string `json:"status"`
}

// Placeholder values for form fields with no backend counterpart. These are
// a known modeling gap between the UI and the record schema, not data.
const (
	PlaceholderRiskTier     = "Lower Risk"
	PlaceholderAssignedUser = "-"
)

// DefaultSystemRequired is used when the form supplies no business unit.
const DefaultSystemRequired = "Vantage"

// DefaultRuleSetID is the fixed rule-set identifier stamped on submissions
// until a rule engine supplies one.
const DefaultRuleSetID = "DEFAULT_RULESET_V1"
