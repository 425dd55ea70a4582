package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mixelka/clarify/pkg/models"
)

// ReferenceDetector finds business identifiers in message text
type ReferenceDetector struct {
	patterns []*referencePattern
	listRow  *regexp.Regexp
}

type referencePattern struct {
	Type  string
	Regex *regexp.Regexp
	// needDigit rejects keyword matches like "case closed"
	needDigit bool
}

// ListItem is one row of a message that bundles several requests
type ListItem struct {
	Position       int
	Text           string
	ReferenceType  string
	ReferenceValue string
}

// NewReferenceDetector creates a new reference detector
func NewReferenceDetector() *ReferenceDetector {
	return &ReferenceDetector{
		patterns: []*referencePattern{
			// Date ranges: 01.01.2025 - 31.03.2025
			{
				Type:  models.RefPeriod,
				Regex: regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4}\s*(?:-|–|bis|to)\s*\d{2}\.\d{2}\.\d{4})`),
			},
			// Metering point designation: DE + 31 alphanumerics
			{
				Type:  models.RefMeteringPoint,
				Regex: regexp.MustCompile(`\b(DE[0-9A-Z]{31})\b`),
			},
			// Meter numbers with keyword
			{
				Type:  models.RefMeteringPoint,
				Regex: regexp.MustCompile(`(?i)(?:meter|zähler|zaehler)(?:\s*(?:no\.?|nr\.?|number|nummer))?[\s:#\-]*(\d{5,12})\b`),
			},
			// Market location: 11 digits
			{
				Type:  models.RefDeliveryPoint,
				Regex: regexp.MustCompile(`\b(\d{11})\b`),
			},
			// Process numbers with keyword
			{
				Type:      models.RefProcessNumber,
				Regex:     regexp.MustCompile(`(?i)(?:vorgang|process|prozess)(?:s?nummer|\s*(?:no\.?|nr\.?|number|id))?[\s:#\-]*([A-Z0-9][A-Z0-9\-]{5,19})\b`),
				needDigit: true,
			},
			// Case and ticket numbers with keyword
			{
				Type:      models.RefCaseNumber,
				Regex:     regexp.MustCompile(`(?i)(?:case|ticket|fall|aktenzeichen|az\.?)(?:\s*(?:no\.?|nr\.?|number|nummer))?[\s:#\-]*([A-Z0-9][A-Z0-9\-/]{3,19})\b`),
				needDigit: true,
			},
			// Billing periods: 03/2025, 03.2025, 2025-03
			{
				Type:  models.RefPeriod,
				Regex: regexp.MustCompile(`\b((?:0[1-9]|1[0-2])[./]20\d{2}|20\d{2}-(?:0[1-9]|1[0-2]))\b`),
			},
		},
		listRow: regexp.MustCompile(`^(?:[-*•]|\d{1,3}[.)])\s+`),
	}
}

// DetectReferences finds all identifiers in text, each value reported once
func (d *ReferenceDetector) DetectReferences(text string) models.References {
	var refs models.References
	seen := make(map[string]bool)

	for _, ref := range d.detect(text) {
		if seen[ref.Value] {
			continue
		}
		seen[ref.Value] = true

		switch ref.Type {
		case models.RefMeteringPoint:
			refs.MeteringPoints = append(refs.MeteringPoints, ref.Value)
		case models.RefDeliveryPoint:
			refs.DeliveryPoints = append(refs.DeliveryPoints, ref.Value)
		case models.RefProcessNumber:
			refs.ProcessNumbers = append(refs.ProcessNumbers, ref.Value)
		case models.RefCaseNumber:
			refs.CaseNumbers = append(refs.CaseNumbers, ref.Value)
		case models.RefPeriod:
			refs.Periods = append(refs.Periods, ref.Value)
		}
	}
	return refs
}

// DetectListItems returns list or table rows that each carry an identifier
func (d *ReferenceDetector) DetectListItems(text string) []ListItem {
	var items []ListItem
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		isRow := d.listRow.MatchString(line) || strings.Contains(line, "\t") || strings.Count(line, ";") >= 2
		if !isRow {
			continue
		}

		refs := d.detect(line)
		if len(refs) == 0 || seen[refs[0].Value] {
			continue
		}
		seen[refs[0].Value] = true

		items = append(items, ListItem{
			Position:       len(items) + 1,
			Text:           strings.TrimSpace(d.listRow.ReplaceAllString(line, "")),
			ReferenceType:  refs[0].Type,
			ReferenceValue: refs[0].Value,
		})
	}
	return items
}

func (d *ReferenceDetector) detect(text string) []models.ReferenceValue {
	var out []models.ReferenceValue
	claimed := make(map[string]bool)

	for _, pattern := range d.patterns {
		for _, match := range pattern.Regex.FindAllStringSubmatch(text, -1) {
			if len(match) < 2 {
				continue
			}
			value := strings.TrimSpace(match[1])
			if value == "" || claimedWithin(claimed, value) {
				continue
			}
			if pattern.needDigit && !strings.ContainsFunc(value, unicode.IsDigit) {
				continue
			}
			claimed[value] = true
			out = append(out, models.ReferenceValue{Type: pattern.Type, Value: value})
		}
	}
	return out
}

// claimedWithin reports whether value is already part of a longer match
func claimedWithin(claimed map[string]bool, value string) bool {
	for c := range claimed {
		if strings.Contains(c, value) {
			return true
		}
	}
	return false
}
