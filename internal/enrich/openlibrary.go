package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// OpenLibraryProvider is the primary metadata source: a search call resolves
// work and edition keys, then the work supplies subjects and the edition
// supplies publisher, pages, year and ISBN.
type OpenLibraryProvider struct {
	baseURL string
	client  *http.Client
}

func NewOpenLibraryProvider(baseURL string) *OpenLibraryProvider {
	return &OpenLibraryProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *OpenLibraryProvider) Name() string {
	return "openlibrary"
}

type openLibrarySearchResponse struct {
	Docs []struct {
		Key                 string `json:"key"`
		CoverEditionKey     string `json:"cover_edition_key"`
		FirstPublishYear    *int   `json:"first_publish_year"`
		NumberOfPagesMedian *int   `json:"number_of_pages_median"`
	} `json:"docs"`
}

type openLibraryWorkResponse struct {
	Subjects []string `json:"subjects"`
}

type openLibraryEditionResponse struct {
	PublishDate   string   `json:"publish_date"`
	NumberOfPages *int     `json:"number_of_pages"`
	Publishers    []string `json:"publishers"`
	ISBN13        []string `json:"isbn_13"`
	ISBN10        []string `json:"isbn_10"`
}

var yearPattern = regexp.MustCompile(`\d{4}`)

func (p *OpenLibraryProvider) Lookup(ctx context.Context, req Request) (*Metadata, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("open library provider is not initialized")
	}

	params := url.Values{}
	if req.ISBN13 != nil && strings.TrimSpace(*req.ISBN13) != "" {
		params.Set("q", "isbn:"+strings.TrimSpace(*req.ISBN13))
	} else {
		params.Set("title", cleanTitleForQuery(req.Title))
		params.Set("author", strings.TrimSpace(req.Author))
	}
	params.Set("limit", "1")

	var search openLibrarySearchResponse
	if err := p.getJSON(ctx, p.baseURL+"/search.json?"+params.Encode(), &search); err != nil {
		return nil, fmt.Errorf("open library search: %w", err)
	}
	if len(search.Docs) == 0 {
		return &Metadata{}, nil
	}

	doc := search.Docs[0]
	meta := &Metadata{
		PublishYear: doc.FirstPublishYear,
		PageCount:   doc.NumberOfPagesMedian,
	}

	if workKey := strings.TrimSpace(doc.Key); workKey != "" {
		var work openLibraryWorkResponse
		if err := p.getJSON(ctx, p.baseURL+workKey+".json", &work); err == nil {
			meta.Genres = CanonicalizeGenres(work.Subjects)
		}
	}

	if editionKey := strings.TrimSpace(doc.CoverEditionKey); editionKey != "" {
		var edition openLibraryEditionResponse
		if err := p.getJSON(ctx, p.baseURL+"/books/"+editionKey+".json", &edition); err == nil {
			if match := yearPattern.FindString(edition.PublishDate); match != "" {
				year := atoiSafe(match)
				if year > 0 {
					meta.PublishYear = preferExisting(meta.PublishYear, &year)
				}
			}
			if edition.NumberOfPages != nil {
				meta.PageCount = preferExisting(meta.PageCount, edition.NumberOfPages)
			}
			if len(edition.Publishers) > 0 {
				publisher := strings.TrimSpace(edition.Publishers[0])
				if publisher != "" {
					meta.Publisher = &publisher
				}
			}
			if len(edition.ISBN13) > 0 {
				isbn := strings.TrimSpace(edition.ISBN13[0])
				meta.ISBN13 = &isbn
			} else if len(edition.ISBN10) > 0 {
				isbn := strings.TrimSpace(edition.ISBN10[0])
				meta.ISBN13 = &isbn
			}
		}
	}

	return meta, nil
}

func (p *OpenLibraryProvider) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return fmt.Errorf("unexpected status %d from %s", res.StatusCode, rawURL)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// cleanTitleForQuery is a lighter cleaner than key normalization: external
// search copes badly with series markers and subtitles, but needs the
// spacing kept.
func cleanTitleForQuery(title string) string {
	cleaned := stripBracketedSegments(title)
	if idx := strings.IndexByte(cleaned, ':'); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	return strings.Join(strings.Fields(cleaned), " ")
}

func stripBracketedSegments(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	depth := 0
	for _, r := range value {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func preferExisting(existing, incoming *int) *int {
	if existing != nil {
		return existing
	}
	return incoming
}

func atoiSafe(value string) int {
	n := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
