package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mixelka/clarify/pkg/models"
)

var errNoJSON = errors.New("no JSON object in model response")

// parseResult decodes the first balanced JSON object of the model output
func parseResult(raw string) (*models.ExtractionResult, error) {
	span, ok := firstObject(raw)
	if !ok {
		return nil, errNoJSON
	}

	var res models.ExtractionResult
	if err := json.Unmarshal([]byte(span), &res); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	normalize(&res)
	return &res, nil
}

// firstObject returns the first {...} span with balanced braces, ignoring braces inside strings
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func normalize(res *models.ExtractionResult) {
	res.Confidence = max(0, min(1, res.Confidence))

	c := &res.Classification
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	switch {
	case c.Category == "":
		c.Category = models.CategoryUnknown
	case !slices.Contains(models.KnownCategories, c.Category):
		c.Category = models.CategoryOther
	}

	c.Priority = oneOf(c.Priority, "medium", "low", "medium", "high", "critical")
	c.Effort = oneOf(c.Effort, "medium", "small", "medium", "large")

	refs := &res.References
	refs.ProcessNumbers = cleanList(refs.ProcessNumbers)
	refs.MeteringPoints = cleanList(refs.MeteringPoints)
	refs.DeliveryPoints = cleanList(refs.DeliveryPoints)
	refs.Periods = cleanList(refs.Periods)
	refs.CaseNumbers = cleanList(refs.CaseNumbers)

	res.Partner.Name = strings.TrimSpace(res.Partner.Name)
	res.Partner.Domain = strings.ToLower(strings.TrimSpace(res.Partner.Domain))
	res.Partner.Codes = cleanList(res.Partner.Codes)
	res.NextSteps = cleanList(res.NextSteps)
}

func oneOf(v, def string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if slices.Contains(allowed, v) {
		return v
	}
	return def
}

// cleanList trims values and drops empties and duplicates
func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// fallback is the result used when the model output cannot be used
func fallback(msg *models.NormalizedMessage, hints models.References) *models.ExtractionResult {
	return &models.ExtractionResult{
		References: hints,
		Classification: models.Classification{
			Category: models.CategoryUnknown,
			Priority: "medium",
			Effort:   "medium",
		},
		Summary:    msg.Subject,
		Confidence: 0.1,
	}
}
