package question

import (
	"strings"

	"golang.org/x/text/language"
)

// Resolve picks the declared language that best serves the requested ones.
// Requested values are tried in order: an exact (case-insensitive) match wins,
// then a BCP 47 match against the declared languages that parse as tags.
// Declared languages like "English" that are not tags only match exactly.
// Falls back to the first declared language.
func Resolve(declared []string, requested ...string) string {
	if len(declared) == 0 {
		return ""
	}

	for _, r := range requested {
		if r == "" {
			continue
		}
		for _, d := range declared {
			if strings.EqualFold(d, r) {
				return d
			}
		}
	}

	var tags []language.Tag
	var idx []int
	for i, d := range declared {
		tag, err := language.Parse(d)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		idx = append(idx, i)
	}
	if len(tags) > 0 {
		matcher := language.NewMatcher(tags)
		for _, r := range requested {
			tag, err := language.Parse(r)
			if err != nil {
				continue
			}
			if _, i, conf := matcher.Match(tag); conf != language.No {
				return declared[idx[i]]
			}
		}
	}

	return declared[0]
}

// ResolveAccept resolves a language from an explicit selection, an
// Accept-Language header and a configured default, in that order of preference.
func ResolveAccept(declared []string, explicit, acceptLanguage, def string) string {
	requested := []string{explicit}
	if acceptLanguage != "" {
		tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
		if err == nil {
			for _, t := range tags {
				requested = append(requested, t.String())
			}
		}
	}
	requested = append(requested, def)
	return Resolve(declared, requested...)
}
