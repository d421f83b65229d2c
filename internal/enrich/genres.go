package enrich

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// canonicalGenreMap folds the subject soup external sources return into a
// small canonical genre vocabulary. Aliases match as whole words inside a
// subject string, longest alias first, so "science fiction" wins over
// "fiction".
var canonicalGenreMap = map[string]string{
	"science fiction":      "science fiction",
	"sci-fi":               "science fiction",
	"speculative":          "science fiction",
	"fantasy":              "fantasy",
	"epic fantasy":         "fantasy",
	"magic":                "fantasy",
	"horror":               "horror",
	"thriller":             "thriller",
	"suspense":             "thriller",
	"mystery":              "mystery",
	"detective":            "mystery",
	"crime":                "mystery",
	"romance":              "romance",
	"historical fiction":   "historical fiction",
	"history":              "history",
	"biography":            "biography",
	"autobiography":        "biography",
	"memoir":               "biography",
	"philosophy":           "philosophy",
	"ethics":               "philosophy",
	"psychology":           "psychology",
	"self-help":            "self-help",
	"personal development": "self-help",
	"business":             "business",
	"economics":            "economics",
	"politics":             "social science",
	"sociology":            "social science",
	"anthropology":         "social science",
	"social science":       "social science",
	"science":              "science",
	"physics":              "science",
	"biology":              "science",
	"nature":               "nature",
	"environment":          "nature",
	"travel":               "travel",
	"poetry":               "poetry",
	"essays":               "essays",
	"short stories":        "short stories",
	"young adult":          "young adult",
	"children":             "children",
	"graphic novel":        "graphic novel",
	"comics":               "graphic novel",
	"classics":             "classics",
	"literary fiction":     "literary fiction",
	"nonfiction":           "non-fiction",
	"non-fiction":          "non-fiction",
	"true crime":           "true crime",
	"religion":             "religion",
	"spirituality":         "religion",
	"humor":                "humor",
	"cooking":              "food",
	"food":                 "food",
	"art":                  "art",
	"music":                "art",
	"technology":           "technology",
	"computers":            "technology",
	"mathematics":          "science",
	"war":                  "history",
	"adventure":            "adventure",
}

// excludedGenres are subjects too generic or too administrative to keep.
var excludedGenres = map[string]struct{}{
	"fiction":                   {},
	"general":                   {},
	"literature":                {},
	"accessible book":           {},
	"protected daisy":           {},
	"in library":                {},
	"overdrive":                 {},
	"large type books":          {},
	"open library staff picks":  {},
	"reading level-grade 9":     {},
	"new york times bestseller": {},
}

var (
	aliasOnce     sync.Once
	aliasPatterns []aliasPattern
)

type aliasPattern struct {
	re        *regexp.Regexp
	canonical string
}

func sortedAliasPatterns() []aliasPattern {
	aliasOnce.Do(func() {
		aliases := make([]string, 0, len(canonicalGenreMap))
		for alias := range canonicalGenreMap {
			aliases = append(aliases, alias)
		}
		// Longest first so the most specific alias matches before a
		// substring alias does.
		sort.Slice(aliases, func(i, j int) bool {
			if len(aliases[i]) != len(aliases[j]) {
				return len(aliases[i]) > len(aliases[j])
			}
			return aliases[i] < aliases[j]
		})

		aliasPatterns = make([]aliasPattern, 0, len(aliases))
		for _, alias := range aliases {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
			aliasPatterns = append(aliasPatterns, aliasPattern{re: re, canonical: canonicalGenreMap[alias]})
		}
	})
	return aliasPatterns
}

// CanonicalizeGenres maps raw subject strings to the canonical vocabulary.
// Unmatched and excluded subjects are dropped. The result is sorted and
// deduplicated.
func CanonicalizeGenres(subjects []string) []string {
	if len(subjects) == 0 {
		return nil
	}

	found := make(map[string]struct{})
	for _, subject := range subjects {
		lowered := strings.ToLower(strings.TrimSpace(subject))
		if lowered == "" {
			continue
		}
		if _, excluded := excludedGenres[lowered]; excluded {
			continue
		}
		for _, pattern := range sortedAliasPatterns() {
			if pattern.re.MatchString(lowered) {
				if _, excluded := excludedGenres[pattern.canonical]; !excluded {
					found[pattern.canonical] = struct{}{}
				}
				break
			}
		}
	}
	if len(found) == 0 {
		return nil
	}

	genres := make([]string, 0, len(found))
	for genre := range found {
		genres = append(genres, genre)
	}
	sort.Strings(genres)
	return genres
}
