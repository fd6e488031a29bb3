package store

import (
	"regexp"
	"strings"
)

// Personal-fact templates matched against the raw message. Name tokens
// are restricted to letters, hyphens, and apostrophes, 2-31 characters,
// optionally two words. Matching is case-insensitive.
var (
	reUserName = regexp.MustCompile(
		`(?i)(?:remember\s+)?(?:my\s+name\s+is|call\s+me|i\s+am)\s+([A-Za-z][A-Za-z\-']{1,30}(?:\s+[A-Za-z][A-Za-z\-']{1,30})?)`,
	)
	reDogName = regexp.MustCompile(
		`(?i)(?:remember\s+)?(?:my\s+)?dog(?:'s|s)?\s+name\s+is\s+([A-Za-z][A-Za-z\-']{1,30})`,
	)
)

// ExtractFacts pattern-matches the message against the personal-fact
// templates and persists each match via Upsert. It returns the pairs
// written, in extraction order. No match is not an error; the result
// is simply empty.
func (s *Store) ExtractFacts(message string) ([]StoredFact, error) {
	var stored []StoredFact
	text := strings.TrimSpace(message)

	if m := reUserName.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		if err := s.Upsert("user_name", name); err != nil {
			return stored, err
		}
		stored = append(stored, StoredFact{Key: "user_name", Value: name})
	}

	if m := reDogName.FindStringSubmatch(text); m != nil {
		dog := strings.TrimSpace(m[1])
		if err := s.Upsert("dog_name", dog); err != nil {
			return stored, err
		}
		if err := s.Upsert("dog_owner", "user"); err != nil {
			return stored, err
		}
		stored = append(stored,
			StoredFact{Key: "dog_name", Value: dog},
			StoredFact{Key: "dog_owner", Value: "user"},
		)
	}

	return stored, nil
}
