package surface

import (
	"sort"
	"strings"
)

// DefaultNegativeCodes are the screening results treated as negative when
// no explicit positive codes are configured.
var DefaultNegativeCodes = []string{"nn"}

// ScreeningClassifier decides whether a screening result is VRE positive.
// With positive codes configured, only those results are positive; otherwise
// every result outside the negative codes is.
type ScreeningClassifier struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

func codeSet(codes []string) map[string]struct{} {
	if len(codes) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return set
}

// NewScreeningClassifier builds a classifier. Empty negative codes fall
// back to DefaultNegativeCodes.
func NewScreeningClassifier(positive, negative []string) ScreeningClassifier {
	if len(negative) == 0 {
		negative = DefaultNegativeCodes
	}
	return ScreeningClassifier{positive: codeSet(positive), negative: codeSet(negative)}
}

// IsZero reports whether c is the zero value rather than a constructed
// classifier.
func (c ScreeningClassifier) IsZero() bool {
	return c.positive == nil && c.negative == nil
}

// IsPositive classifies a single result code.
func (c ScreeningClassifier) IsPositive(result string) bool {
	code := strings.ToLower(strings.TrimSpace(result))
	if code == "" {
		return false
	}
	if c.positive != nil {
		_, ok := c.positive[code]
		return ok
	}
	_, neg := c.negative[code]
	return !neg
}

// PatientAttributes orders the screening history by date and derives the
// VRE status and the date of the first positive screening.
func (c ScreeningClassifier) PatientAttributes(history []RiskEntry) PatientAttributes {
	sorted := append([]RiskEntry(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	attrs := PatientAttributes{RiskHistory: sorted, VREStatus: StatusNegative}
	for _, entry := range sorted {
		if c.IsPositive(entry.Result) {
			attrs.VREStatus = StatusPositive
			attrs.InfectionDate = entry.Date
			break
		}
	}
	return attrs
}
