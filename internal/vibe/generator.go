package vibe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vanajmoorthy/bibliotype/internal/dna"
)

// ErrGeneratorDisabled marks a generator that has no credentials configured.
// Callers treat it as "no narrative", never as a failed profile.
var ErrGeneratorDisabled = errors.New("vibe generator is disabled")

// phraseCount is the contract with the model: exactly four short phrases.
const phraseCount = 4

// Generator produces the short narrative phrases for one reading profile.
type Generator interface {
	Generate(ctx context.Context, profile dna.Profile) ([]string, error)
}

// HTTPGenerator talks to a hosted language model over its JSON API.
type HTTPGenerator struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

func NewHTTPGenerator(endpoint, model, apiKey string) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		model:    strings.TrimSpace(model),
		apiKey:   strings.TrimSpace(apiKey),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type promptPart struct {
	Text string `json:"text"`
}

type promptContent struct {
	Parts []promptPart `json:"parts"`
}

type generateRequest struct {
	Contents []promptContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content promptContent `json:"content"`
	} `json:"candidates"`
}

// Generate asks the model for four lowercase phrases describing the reading
// history. One retry on failure, never more.
func (g *HTTPGenerator) Generate(ctx context.Context, profile dna.Profile) ([]string, error) {
	if g == nil || g.apiKey == "" {
		return nil, ErrGeneratorDisabled
	}

	prompt := buildPrompt(profile)

	phrases, err := g.call(ctx, prompt)
	if err != nil {
		phrases, err = g.call(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}
	return phrases, nil
}

func (g *HTTPGenerator) call(ctx context.Context, prompt string) ([]string, error) {
	body := generateRequest{
		Contents: []promptContent{{Parts: []promptPart{{Text: prompt}}}},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.endpoint, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vibe generation request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("unexpected status %d from vibe model", res.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode vibe response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("vibe model returned no candidates")
	}
	return parsePhrases(decoded.Candidates[0].Content.Parts[0].Text)
}

func buildPrompt(profile dna.Profile) string {
	var b strings.Builder
	b.WriteString("You are describing a reader's taste. Based on the reading profile below, ")
	b.WriteString("respond with a JSON array of exactly 4 short lowercase phrases (2-5 words each) ")
	b.WriteString("capturing the vibe of this reader. Respond with the JSON array only.\n\n")

	fmt.Fprintf(&b, "books read: %d\n", profile.Stats.TotalBooks)
	if profile.Stats.AverageRating > 0 {
		fmt.Fprintf(&b, "average rating given: %.1f\n", profile.Stats.AverageRating)
	}
	if len(profile.Stats.TopGenres) > 0 {
		genres := make([]string, 0, len(profile.Stats.TopGenres))
		for _, entry := range profile.Stats.TopGenres {
			genres = append(genres, entry.Name)
		}
		fmt.Fprintf(&b, "favourite genres: %s\n", strings.Join(genres, ", "))
	}
	if len(profile.Stats.TopAuthors) > 0 {
		authors := make([]string, 0, len(profile.Stats.TopAuthors))
		for _, entry := range profile.Stats.TopAuthors {
			authors = append(authors, entry.Name)
		}
		fmt.Fprintf(&b, "most read authors: %s\n", strings.Join(authors, ", "))
	}
	if profile.Archetype.Name != "" {
		fmt.Fprintf(&b, "reader archetype: %s\n", profile.Archetype.Name)
	}
	fmt.Fprintf(&b, "mainstream taste: %.0f%%\n", profile.Mainstream.Percent)
	return b.String()
}

// parsePhrases extracts the phrase array from model output, tolerating code
// fences around the JSON.
func parsePhrases(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var phrases []string
	if err := json.Unmarshal([]byte(text), &phrases); err != nil {
		return nil, fmt.Errorf("vibe model output is not a JSON array: %w", err)
	}

	cleaned := make([]string, 0, phraseCount)
	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		cleaned = append(cleaned, phrase)
		if len(cleaned) == phraseCount {
			break
		}
	}
	if len(cleaned) != phraseCount {
		return nil, fmt.Errorf("expected %d phrases, got %d", phraseCount, len(cleaned))
	}
	return cleaned, nil
}
