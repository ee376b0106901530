package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// requiredKeys is the fixed, case-sensitive field set of a draft persona.
var requiredKeys = []string{
	"AGE", "LOCATION", "TRAITS", "BEHAVIOURS", "FRUSTRATIONS",
	"GOALS", "PERSONALITY", "MOTIVATIONS", "QUOTE",
}

// ParseDraft decodes a syntactically valid JSON object into a Draft,
// applying only information-preserving structural repairs: a bare string
// where a one-element list was expected is wrapped, a single entry object
// where an entry list was expected is wrapped, and an integral float index
// is narrowed to int. Anything else that does not fit the expected shape is
// reported as a SchemaError. Content is never repaired here.
func ParseDraft(data []byte) (*Draft, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &SchemaError{Fields: []string{fmt.Sprintf("draft: not a JSON object: %v", err)}}
	}

	var violations []string
	missing := func(key string) bool {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			violations = append(violations, key+": missing")
			return true
		}
		return false
	}

	d := &Draft{}
	for _, key := range requiredKeys {
		if missing(key) {
			continue
		}
		raw := fields[key]
		switch key {
		case "AGE":
			d.Age = parseString(key, raw, &violations)
		case "LOCATION":
			d.Location = parseString(key, raw, &violations)
		case "PERSONALITY":
			d.Personality = parseString(key, raw, &violations)
		case "MOTIVATIONS":
			d.Motivations = parseString(key, raw, &violations)
		case "QUOTE":
			d.Quote = parseString(key, raw, &violations)
		case "TRAITS":
			d.Traits = parseStringList(key, raw, &violations)
		case "BEHAVIOURS":
			d.Behaviours = parseClaims(key, raw, &violations)
		case "FRUSTRATIONS":
			d.Frustrations = parseClaims(key, raw, &violations)
		case "GOALS":
			d.Goals = parseClaims(key, raw, &violations)
		}
	}

	if len(violations) > 0 {
		return nil, &SchemaError{Fields: violations}
	}
	return d, nil
}

func parseString(key string, raw json.RawMessage, violations *[]string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		*violations = append(*violations, key+": expected string")
		return ""
	}
	return s
}

// parseStringList accepts a list of strings, repairing a bare string into a
// one-element list.
func parseStringList(key string, raw json.RawMessage, violations *[]string) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	*violations = append(*violations, key+": expected list of strings")
	return nil
}

// claimShape tolerates numeric indices arriving as floats; narrowing to int
// happens in toClaim and only when no information is lost.
type claimShape struct {
	Statement string      `json:"statement"`
	Quote     string      `json:"quote"`
	Index     json.Number `json:"index"`
}

func (c claimShape) toClaim(field string, violations *[]string) Claim {
	idx := -1
	if c.Index != "" {
		if n, err := c.Index.Int64(); err == nil {
			idx = int(n)
		} else if f, ferr := c.Index.Float64(); ferr == nil && f == float64(int64(f)) {
			idx = int(f)
		} else {
			*violations = append(*violations, fmt.Sprintf("%s: index %q is not an integer", field, c.Index))
		}
	}
	return Claim{Statement: c.Statement, Quote: c.Quote, Index: idx}
}

// parseClaims accepts a list of claim objects, repairing a single bare
// object into a one-element list.
func parseClaims(key string, raw json.RawMessage, violations *[]string) []Claim {
	var shapes []claimShape
	if err := json.Unmarshal(raw, &shapes); err != nil {
		var single claimShape
		if err := json.Unmarshal(raw, &single); err != nil {
			*violations = append(*violations, key+": expected list of {statement, quote, index} entries")
			return nil
		}
		shapes = []claimShape{single}
	}
	claims := make([]Claim, 0, len(shapes))
	for i, sh := range shapes {
		claims = append(claims, sh.toClaim(fmt.Sprintf("%s[%d]", key, i), violations))
	}
	return claims
}

// ValidateDraft checks draft content against the evidence corpus: every
// claim must carry a statement, a verbatim quote, and an index resolvable
// within corpus bounds, and the quote must be an exact substring of the
// referenced item's body. Content violations are never repaired.
func ValidateDraft(d *Draft, src EvidenceSource) error {
	var violations []string

	strFields := []struct {
		key string
		val string
	}{
		{"AGE", d.Age},
		{"LOCATION", d.Location},
		{"PERSONALITY", d.Personality},
		{"MOTIVATIONS", d.Motivations},
		{"QUOTE", d.Quote},
	}
	for _, f := range strFields {
		if strings.TrimSpace(f.val) == "" {
			violations = append(violations, f.key+": empty")
		}
	}

	claimFields := []struct {
		key    string
		claims []Claim
	}{
		{"BEHAVIOURS", d.Behaviours},
		{"FRUSTRATIONS", d.Frustrations},
		{"GOALS", d.Goals},
	}
	for _, f := range claimFields {
		for i, c := range f.claims {
			violations = append(violations, validateClaim(fmt.Sprintf("%s[%d]", f.key, i), c, src)...)
		}
	}

	if len(violations) > 0 {
		return &SchemaError{Fields: violations}
	}
	return nil
}

func validateClaim(field string, c Claim, src EvidenceSource) []string {
	var violations []string
	if strings.TrimSpace(c.Statement) == "" {
		violations = append(violations, field+".statement: empty")
	}
	if strings.TrimSpace(c.Quote) == "" {
		violations = append(violations, field+".quote: empty")
		return violations
	}
	item, ok := src.Item(c.Index)
	if !ok {
		violations = append(violations, fmt.Sprintf("%s.index: %d out of range [0,%d)", field, c.Index, src.Len()))
		return violations
	}
	if !strings.Contains(item.Body, c.Quote) {
		violations = append(violations, fmt.Sprintf("%s.quote: not found verbatim in item %d", field, c.Index))
	}
	return violations
}
