package codes

import (
	"fmt"
	"regexp"

	"github.com/ashureev/kiroku/internal/textnorm"
)

var codePattern = regexp.MustCompile(`kbn-?([0-9]{3})-?f([0-9]{2})`)

// ExtractCode scans free text for the first kbn-###-f## code,
// tolerating full-width characters, stray hyphens and missing
// separators. The code is returned in the canonical hyphenated
// upper-case form so the same code never bookmarks twice under
// different spellings.
func ExtractCode(text string) (string, bool) {
	loose := textnorm.NormalizeLoose(text)
	m := codePattern.FindStringSubmatch(loose)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("KBN-%s-F%s", m[1], m[2]), true
}
