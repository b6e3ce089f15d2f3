package timetable

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// groupNamePattern matches group codes like IU7-34, ПБ2-191-ОБ.
var groupNamePattern = regexp.MustCompile(`^[\p{Lu}0-9]+-\d{1,3}(?:-[\p{Lu}]+)?$`)

// LooksLikeGroup reports whether free-form text is shaped like a group code.
func LooksLikeGroup(text string) bool {
	return groupNamePattern.MatchString(strings.ToUpper(strings.TrimSpace(text)))
}

// LooksLikeTeacher reports whether free-form text resembles a person's
// name: at least two words, each starting with an uppercase letter.
func LooksLikeTeacher(text string) bool {
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) < 2 {
		return false
	}
	for _, w := range words {
		r := []rune(w)[0]
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// DetectKind guesses the entity kind behind free-form text on a cold
// start, before the user has picked a mode. The bool is false when the
// text is ambiguous and the user must be asked.
func DetectKind(text string) (Kind, bool) {
	switch {
	case LooksLikeGroup(text):
		return KindGroup, true
	case LooksLikeTeacher(text):
		return KindTeacher, true
	default:
		return "", false
	}
}

// maxMatches caps how many disambiguation choices are offered.
const maxMatches = 10

// Search filters the entity list by query. An exact (case-insensitive)
// hit short-circuits everything else; otherwise substring matches come
// first and fuzzy matches fill the remainder, best distance first.
func Search(ctx context.Context, p Provider, query string, kind Kind) ([]string, error) {
	names, err := p.Entities(ctx, kind)
	if err != nil {
		return nil, err
	}
	return Rank(query, names), nil
}

// Rank orders candidate names for a query, see Search.
func Rank(query string, names []string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	lower := strings.ToLower(query)

	var substr []string
	for _, n := range names {
		if strings.ToLower(n) == lower {
			return []string{n}
		}
		if strings.Contains(strings.ToLower(n), lower) {
			substr = append(substr, n)
		}
	}

	seen := make(map[string]struct{}, len(substr))
	out := make([]string, 0, maxMatches)
	for _, n := range substr {
		if len(out) == maxMatches {
			return out
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.Sort(ranks)
	for _, r := range ranks {
		if len(out) == maxMatches {
			break
		}
		if _, dup := seen[r.Target]; dup {
			continue
		}
		seen[r.Target] = struct{}{}
		out = append(out, r.Target)
	}
	return out
}
