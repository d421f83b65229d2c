package dna

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed archetype_rules.json
var defaultArchetypeRules []byte

//go:embed archetype_rules.schema.json
var archetypeRulesSchema []byte

// Rule kinds understood by the archetype engine.
const (
	ruleKindPageBand       = "page_band"
	ruleKindEra            = "era"
	ruleKindGenre          = "genre"
	ruleKindSmallPublisher = "small_publisher"
	ruleKindDiversity      = "diversity"
	ruleKindPace           = "pace"
)

// ArchetypeRule is one scoring rule from the rule table. Counting kinds award
// points per matching book; diversity awards a flat bonus; pace can override
// the whole board.
type ArchetypeRule struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Priority   int      `json:"priority"`
	Points     int      `json:"points"`
	MinPages   *int     `json:"min_pages,omitempty"`
	MaxPages   *int     `json:"max_pages,omitempty"`
	BeforeYear *int     `json:"before_year,omitempty"`
	AfterYear  *int     `json:"after_year,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	MinGenres  int      `json:"min_genres,omitempty"`
	MinPerYear int      `json:"min_per_year,omitempty"`
	Override   bool     `json:"override,omitempty"`
}

// ArchetypeRules is the full validated rule table.
type ArchetypeRules struct {
	Fallback string          `json:"fallback"`
	Rules    []ArchetypeRule `json:"rules"`
}

// LoadArchetypeRules reads and validates a rule table. An empty path loads
// the embedded default table.
func LoadArchetypeRules(path string) (*ArchetypeRules, error) {
	raw := defaultArchetypeRules
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read archetype rules %s: %w", path, err)
		}
		raw = data
	}

	if err := validateArchetypeRules(raw); err != nil {
		return nil, err
	}

	var rules ArchetypeRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decode archetype rules: %w", err)
	}
	return &rules, nil
}

func validateArchetypeRules(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("archetype_rules.schema.json", bytes.NewReader(archetypeRulesSchema)); err != nil {
		return fmt.Errorf("load archetype rules schema: %w", err)
	}
	schema, err := compiler.Compile("archetype_rules.schema.json")
	if err != nil {
		return fmt.Errorf("compile archetype rules schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("archetype rules are not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("archetype rules failed validation: %w", err)
	}
	return nil
}

// ArchetypeResult is the winning archetype plus the full score board, kept
// for explainability.
type ArchetypeResult struct {
	Name   string         `json:"name"`
	Scores map[string]int `json:"scores"`
}

// PickArchetype scores every rule against the reading history and returns
// the winner. Ties break by rule priority (lower wins); a zero board falls
// back to the configured label. An override pace rule that fires wins
// outright.
func (r *ArchetypeRules) PickArchetype(books []ReadBook) ArchetypeResult {
	result := ArchetypeResult{Scores: make(map[string]int)}
	if r == nil {
		result.Name = "Eclectic Reader"
		return result
	}

	distinctGenres := make(map[string]struct{})
	perYear := make(map[int]int)
	for _, book := range books {
		for _, genre := range book.Fact.Genres {
			distinctGenres[genre] = struct{}{}
		}
		if book.DateRead != nil {
			perYear[book.DateRead.Year()]++
		}
	}
	peakPace := 0
	for _, n := range perYear {
		if n > peakPace {
			peakPace = n
		}
	}

	for _, rule := range r.Rules {
		score := rule.score(books, len(distinctGenres))
		if score > 0 {
			result.Scores[rule.Name] = score
		}
		if rule.Kind == ruleKindPace && rule.Override && rule.MinPerYear > 0 && peakPace >= rule.MinPerYear {
			result.Name = rule.Name
			result.Scores[rule.Name] = peakPace
			return result
		}
	}

	winner := ""
	best := 0
	winnerPriority := 0
	for _, rule := range r.Rules {
		score := result.Scores[rule.Name]
		if score == 0 {
			continue
		}
		if winner == "" || score > best || (score == best && rule.Priority < winnerPriority) {
			winner = rule.Name
			best = score
			winnerPriority = rule.Priority
		}
	}
	if winner == "" {
		winner = r.Fallback
	}
	result.Name = winner
	return result
}

func (rule ArchetypeRule) score(books []ReadBook, distinctGenres int) int {
	switch rule.Kind {
	case ruleKindPageBand:
		matches := 0
		for _, book := range books {
			if book.Fact.PageCount == nil {
				continue
			}
			pages := *book.Fact.PageCount
			if rule.MinPages != nil && pages < *rule.MinPages {
				continue
			}
			if rule.MaxPages != nil && pages > *rule.MaxPages {
				continue
			}
			matches++
		}
		return matches * rule.Points
	case ruleKindEra:
		matches := 0
		for _, book := range books {
			if book.Fact.PublishYear == nil {
				continue
			}
			year := *book.Fact.PublishYear
			if rule.BeforeYear != nil && year >= *rule.BeforeYear {
				continue
			}
			if rule.AfterYear != nil && year <= *rule.AfterYear {
				continue
			}
			matches++
		}
		return matches * rule.Points
	case ruleKindGenre:
		wanted := make(map[string]struct{}, len(rule.Genres))
		for _, genre := range rule.Genres {
			wanted[genre] = struct{}{}
		}
		matches := 0
		for _, book := range books {
			for _, genre := range book.Fact.Genres {
				if _, ok := wanted[genre]; ok {
					matches++
					break
				}
			}
		}
		return matches * rule.Points
	case ruleKindSmallPublisher:
		matches := 0
		for _, book := range books {
			if book.Fact.PublisherMainstream != nil && !*book.Fact.PublisherMainstream {
				matches++
			}
		}
		return matches * rule.Points
	case ruleKindDiversity:
		if rule.MinGenres > 0 && distinctGenres >= rule.MinGenres {
			return rule.Points
		}
		return 0
	case ruleKindPace:
		return 0
	default:
		return 0
	}
}

// RuleNames lists the table's archetype names in priority order.
func (r *ArchetypeRules) RuleNames() []string {
	if r == nil {
		return nil
	}
	rules := make([]ArchetypeRule, len(r.Rules))
	copy(rules, r.Rules)
	sort.Slice(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, rule.Name)
	}
	return names
}
