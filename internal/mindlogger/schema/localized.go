package schema

import (
	"fmt"

	"golang.org/x/text/language"
)

// LocalizedText maps a BCP 47 language tag to text, e.g. {"en": "How are you?"}.
type LocalizedText map[string]string

// Validate rejects keys that are not well-formed language tags.
func (t LocalizedText) Validate() error {
	for k := range t {
		if _, err := language.Parse(k); err != nil {
			return fmt.Errorf("invalid language tag %q: %w", k, err)
		}
	}
	return nil
}

// Pick returns the text for the preferred language, falling back to English
// and then to any value.
func (t LocalizedText) Pick(preferred string) string {
	if v, ok := t[preferred]; ok {
		return v
	}
	if tag, err := language.Parse(preferred); err == nil {
		base, _ := tag.Base()
		if v, ok := t[base.String()]; ok {
			return v
		}
	}
	if v, ok := t["en"]; ok {
		return v
	}
	for _, v := range t {
		return v
	}
	return ""
}
