// Package caseid derives short, human-readable case identifiers from
// clinician and child name fragments.
package caseid

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidIdentityInput is returned when a name fragment yields no usable
// initials.
var ErrInvalidIdentityInput = errors.New("caseid: empty identity fragment")

// maxAttempts bounds suffix probing; with a three-digit suffix the space is
// exhausted long before this matters.
const maxAttempts = 999

// Generate produces an identifier like "KS-JD-001" from the two name
// fragments. The function is pure: uniqueness is the caller's concern,
// supplied through the set of identifiers already in use. On collision the
// numeric suffix is incremented until a free identifier is found.
func Generate(clinicianName, childName string, existing map[string]bool) (string, error) {
	clinician := initials(clinicianName)
	child := initials(childName)
	if clinician == "" || child == "" {
		return "", ErrInvalidIdentityInput
	}

	base := clinician + "-" + child
	for n := 1; n <= maxAttempts; n++ {
		id := fmt.Sprintf("%s-%03d", base, n)
		if !existing[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("caseid: suffix space exhausted for %s", base)
}

// initials takes the first letter of up to two words of the fragment,
// uppercased. Non-letter tokens are skipped.
func initials(name string) string {
	var b strings.Builder
	letters := 0
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) {
				b.WriteRune(unicode.ToUpper(r))
				letters++
			}
			break
		}
		if letters >= 2 {
			break
		}
	}
	return b.String()
}
