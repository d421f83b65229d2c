package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// GoogleBooksProvider is the secondary source. It carries no durable quota;
// a token-bucket limiter throttles it at the transport instead.
type GoogleBooksProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewGoogleBooksProvider(baseURL, apiKey string, perSecond float64) *GoogleBooksProvider {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &GoogleBooksProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (p *GoogleBooksProvider) Name() string {
	return "googlebooks"
}

type googleBooksResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			PageCount     *int     `json:"pageCount"`
			PublishedDate string   `json:"publishedDate"`
			Publisher     string   `json:"publisher"`
			Categories    []string `json:"categories"`
			RatingsCount  *int     `json:"ratingsCount"`
			AverageRating *float64 `json:"averageRating"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

func (p *GoogleBooksProvider) Lookup(ctx context.Context, req Request) (*Metadata, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("google books provider is not initialized")
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("google books API key is not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var query string
	if req.ISBN13 != nil && strings.TrimSpace(*req.ISBN13) != "" {
		query = "isbn:" + strings.TrimSpace(*req.ISBN13)
	} else {
		query = fmt.Sprintf("intitle:%s+inauthor:%s",
			url.QueryEscape(cleanTitleForQuery(req.Title)),
			url.QueryEscape(strings.TrimSpace(req.Author)))
	}

	endpoint := fmt.Sprintf("%s/volumes?q=%s&key=%s", p.baseURL, query, url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google books request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("unexpected status %d from google books", res.StatusCode)
	}

	var decoded googleBooksResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode google books response: %w", err)
	}
	if decoded.TotalItems == 0 || len(decoded.Items) == 0 {
		return &Metadata{}, nil
	}

	info := decoded.Items[0].VolumeInfo
	meta := &Metadata{
		PageCount:     info.PageCount,
		RatingsCount:  info.RatingsCount,
		AverageRating: info.AverageRating,
		Genres:        CanonicalizeGenres(info.Categories),
	}
	if match := yearPattern.FindString(info.PublishedDate); match != "" {
		if year := atoiSafe(match); year > 0 {
			meta.PublishYear = &year
		}
	}
	if publisher := strings.TrimSpace(info.Publisher); publisher != "" {
		meta.Publisher = &publisher
	}
	return meta, nil
}
