package models

// ============================================================================
// Canonical Schema
// ============================================================================

// Canonical contract field names. The catalog file is the source of truth;
// these constants exist for the fields that scoring and transforms treat
// specially.
const (
	FieldContractID        = "contract_id"
	FieldPartyBuyer        = "party_buyer"
	FieldPartySeller       = "party_seller"
	FieldEffectiveDate     = "effective_date"
	FieldExpiryDate        = "expiry_date"
	FieldContractValueLTV  = "contract_value_ltv"
	FieldContractValueARR  = "contract_value_arr"
	FieldStatus            = "status"
	FieldContractType      = "contract_type"
	FieldAutoRenew         = "auto_renew"
	FieldRenewalTermMonths = "renewal_term_months"
	FieldGoverningLaw      = "governing_law"
	FieldJurisdiction      = "jurisdiction"
)

// Contract status enum values.
const (
	StatusDraft      = "DRAFT"
	StatusActive     = "ACTIVE"
	StatusSuspended  = "SUSPENDED"
	StatusTerminated = "TERMINATED"
	StatusExpired    = "EXPIRED"
)

// Contract type enum values.
const (
	ContractTypeMSA       = "MSA"
	ContractTypeNDA       = "NDA"
	ContractTypeSOW       = "SOW"
	ContractTypeOrderForm = "ORDER_FORM"
	ContractTypeOther     = "OTHER"
)

// CanonicalField is one catalog entry of the canonical contract schema.
type CanonicalField struct {
	Name        string     `yaml:"name" json:"name"`
	Type        ColumnType `yaml:"type" json:"type"`
	Required    bool       `yaml:"required" json:"required"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`

	// Values holds the fixed value set for enum fields.
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`

	// Precision/Scale apply to decimal fields.
	Precision int `yaml:"precision,omitempty" json:"precision,omitempty"`
	Scale     int `yaml:"scale,omitempty" json:"scale,omitempty"`

	CurrencyCode string `yaml:"currency_code,omitempty" json:"currency_code,omitempty"`
}

// CanonicalSchema is the complete canonical schema definition.
// Loaded once at startup and read-only for the lifetime of a resolution run.
type CanonicalSchema struct {
	Version     string           `yaml:"version" json:"version"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	LastUpdated string           `yaml:"last_updated,omitempty" json:"last_updated,omitempty"`
	Fields      []CanonicalField `yaml:"fields" json:"fields"`
}
