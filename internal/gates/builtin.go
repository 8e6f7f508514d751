package gates

import (
	"fmt"
	"strings"
)

// Built-in gate names.
const (
	// GatePICOTComplete checks that a formulated clinical question carries
	// all five PICOT components.
	GatePICOTComplete = "picot_complete"

	// GateCitationGrounding checks that every cited ID was verified against
	// source material.
	GateCitationGrounding = "citation_grounding"

	// GateMinSubstance checks that free text is non-empty and long enough to
	// plausibly carry its phase's output.
	GateMinSubstance = "min_substance"
)

// picotComponents maps each PICOT component to the markers that count as
// evidence of its presence in a formulated question.
var picotComponents = []struct {
	name    string
	markers []string
}{
	{"population", []string{"p:", "population"}},
	{"intervention", []string{"i:", "intervention"}},
	{"comparison", []string{"c:", "comparison", "comparator", "compared"}},
	{"outcome", []string{"o:", "outcome"}},
	{"timeframe", []string{"t:", "time", "duration", "week", "month"}},
}

// picotComplete verifies a PICOT-style question names all five components.
// Expects content["question"] (string).
func picotComplete(content map[string]interface{}) Result {
	question, ok := stringField(content, "question")
	if !ok || strings.TrimSpace(question) == "" {
		return Result{
			Passed:  false,
			Message: "no question to evaluate",
			Details: map[string]interface{}{"missing": []string{"question"}},
		}
	}

	lower := strings.ToLower(question)
	var missing []string
	for _, component := range picotComponents {
		found := false
		for _, marker := range component.markers {
			if strings.Contains(lower, marker) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, component.name)
		}
	}

	if len(missing) > 0 {
		return Result{
			Passed:  false,
			Message: fmt.Sprintf("PICOT question is missing %d component(s): %s", len(missing), strings.Join(missing, ", ")),
			Details: map[string]interface{}{"missing": missing},
		}
	}

	return Result{
		Passed:  true,
		Message: "PICOT question carries all five components",
		Details: map[string]interface{}{"missing": []string{}},
	}
}

// citationGrounding verifies cited IDs are a subset of verified IDs.
// Expects content["cited_ids"] and content["verified_ids"] ([]string).
func citationGrounding(content map[string]interface{}) Result {
	cited, _ := stringSliceField(content, "cited_ids")
	verified, _ := stringSliceField(content, "verified_ids")

	seen := make(map[string]bool, len(verified))
	for _, id := range verified {
		seen[id] = true
	}

	var unverified []string
	for _, id := range cited {
		if !seen[id] {
			unverified = append(unverified, id)
		}
	}

	if len(unverified) > 0 {
		return Result{
			Passed:  false,
			Message: fmt.Sprintf("%d cited ID(s) were not verified: %s", len(unverified), strings.Join(unverified, ", ")),
			Details: map[string]interface{}{"unverified_ids": unverified},
		}
	}

	return Result{
		Passed:  true,
		Message: fmt.Sprintf("all %d cited IDs verified", len(cited)),
		Details: map[string]interface{}{"unverified_ids": []string{}},
	}
}

// minSubstanceDefault is the length floor applied when no min_length is given.
const minSubstanceDefault = 80

// minSubstance verifies free text is non-empty and at least min_length runes.
// Expects content["text"] (string) and optionally content["min_length"] (int).
func minSubstance(content map[string]interface{}) Result {
	text, _ := stringField(content, "text")
	text = strings.TrimSpace(text)

	minLength := minSubstanceDefault
	if v, ok := content["min_length"]; ok {
		if n, ok := toInt(v); ok && n > 0 {
			minLength = n
		}
	}

	length := len([]rune(text))
	if length < minLength {
		return Result{
			Passed:  false,
			Message: fmt.Sprintf("output has %d characters, below the %d required", length, minLength),
			Details: map[string]interface{}{"length": length, "min_length": minLength},
		}
	}

	return Result{
		Passed:  true,
		Message: "output meets the substance floor",
		Details: map[string]interface{}{"length": length, "min_length": minLength},
	}
}

func stringField(content map[string]interface{}, key string) (string, bool) {
	v, ok := content[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringSliceField(content map[string]interface{}, key string) ([]string, bool) {
	v, ok := content[key]
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case []string:
		return s, true
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
