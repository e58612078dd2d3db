// Package i18n resolves language hints and looks up localized assistant text.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Language is the closed set of languages assistant text is written in.
type Language string

const (
	English Language = "en"
	Spanish Language = "es"
	French  Language = "fr"
	Hebrew  Language = "he"
	Russian Language = "ru"
)

// Fallback is used when nothing better matches.
const Fallback = English

var supported = []Language{English, Spanish, French, Hebrew, Russian}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(supported))
	for i, l := range supported {
		tags[i] = language.MustParse(string(l))
	}
	return language.NewMatcher(tags)
}()

// Resolve maps free-form hints ("he-IL", "en_US", "fr") onto a supported
// language. The first hint with a confident match wins; otherwise Fallback.
func Resolve(hints ...string) Language {
	for _, hint := range hints {
		hint = strings.TrimSpace(strings.ReplaceAll(hint, "_", "-"))
		if hint == "" {
			continue
		}
		tag, err := language.Parse(hint)
		if err != nil {
			continue
		}
		_, idx, conf := matcher.Match(tag)
		if conf >= language.High {
			return supported[idx]
		}
	}
	return Fallback
}
