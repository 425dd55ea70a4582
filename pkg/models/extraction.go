package models

import "time"

// Extraction categories understood by the case engine
const (
	CategoryBilling    = "billing"
	CategoryMetering   = "metering"
	CategoryContract   = "contract"
	CategorySwitching  = "switching"
	CategoryGridUsage  = "grid_usage"
	CategoryMasterData = "master_data"
	CategoryTechnical  = "technical"
	CategoryOther      = "other"
	CategoryUnknown    = "unknown"
)

// KnownCategories lists every category the model may return
var KnownCategories = []string{
	CategoryBilling,
	CategoryMetering,
	CategoryContract,
	CategorySwitching,
	CategoryGridUsage,
	CategoryMasterData,
	CategoryTechnical,
	CategoryOther,
	CategoryUnknown,
}

// Reference types stored on case_references
const (
	RefProcessNumber = "process_number"
	RefMeteringPoint = "metering_point"
	RefDeliveryPoint = "delivery_point"
	RefPeriod        = "period"
	RefCaseNumber    = "case_number"
)

// ExtractionResult is the structured output of the extraction step
type ExtractionResult struct {
	Partner        PartnerCandidate `json:"partner"`
	References     References       `json:"references"`
	Classification Classification   `json:"classification"`
	Summary        string           `json:"summary"`
	NextSteps      []string         `json:"next_steps"`
	Automation     AutomationFlags  `json:"automation"`
	Confidence     float64          `json:"confidence"`

	FromCache bool `json:"-"`
}

// PartnerCandidate is the sender organization as understood by the model
type PartnerCandidate struct {
	Name   string   `json:"name"`
	Domain string   `json:"domain"`
	Codes  []string `json:"codes"`
}

// References groups the business identifiers found in a message
type References struct {
	ProcessNumbers []string `json:"process_numbers"`
	MeteringPoints []string `json:"metering_points"`
	DeliveryPoints []string `json:"delivery_points"`
	Periods        []string `json:"periods"`
	CaseNumbers    []string `json:"case_numbers"`
}

// ReferenceValue is one typed identifier
type ReferenceValue struct {
	Type  string
	Value string
}

// All flattens the references in a stable order
func (r References) All() []ReferenceValue {
	var out []ReferenceValue
	add := func(typ string, values []string) {
		for _, v := range values {
			out = append(out, ReferenceValue{Type: typ, Value: v})
		}
	}
	add(RefProcessNumber, r.ProcessNumbers)
	add(RefMeteringPoint, r.MeteringPoints)
	add(RefDeliveryPoint, r.DeliveryPoints)
	add(RefPeriod, r.Periods)
	add(RefCaseNumber, r.CaseNumbers)
	return out
}

// Count returns the number of identifiers
func (r References) Count() int {
	return len(r.ProcessNumbers) + len(r.MeteringPoints) + len(r.DeliveryPoints) + len(r.Periods) + len(r.CaseNumbers)
}

// Classification is the model's category, priority and effort estimate
type Classification struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
	Effort   string `json:"effort"`
}

// AutomationFlags tell the case engine which follow-up actions to run
type AutomationFlags struct {
	AutoHandle         bool   `json:"auto_handle"`
	DraftResponse      bool   `json:"draft_response"`
	ForwardingRequired bool   `json:"forwarding_required"`
	ForwardTo          string `json:"forward_to"`
}

// CacheEntry is a stored extraction result for one content hash and team
type CacheEntry struct {
	ContentHash string    `db:"content_hash"`
	TeamID      int64     `db:"team_id"`
	ResultJSON  string    `db:"result_json"`
	Confidence  float64   `db:"confidence"`
	CreatedAt   time.Time `db:"created_at"`
}

// Expired reports whether the entry is older than ttl at now
func (e *CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	return !now.Before(e.CreatedAt.Add(ttl))
}
