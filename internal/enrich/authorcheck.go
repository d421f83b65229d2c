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

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/globaltime"
)

// Thresholds for calling an author mainstream. Either a working author with a
// real audience, or a household name whose pageviews alone settle it.
const (
	mainstreamMinWorks        = 10
	mainstreamMinMonthlyViews = 2000
	mainstreamIconViews       = 50000
)

// AuthorStore persists mainstream check outcomes.
type AuthorStore interface {
	UpdateAuthorMainstream(ctx context.Context, authorID int64, mainstream bool, workCount, monthlyViews int, checkedAt time.Time) error
}

// MainstreamChecker decides whether an author is mainstream from their
// catalog footprint and encyclopedia readership.
type MainstreamChecker struct {
	openLibraryBaseURL string
	wikimediaBaseURL   string
	client             *http.Client
	store              AuthorStore
	logger             zerolog.Logger
}

func NewMainstreamChecker(openLibraryBaseURL, wikimediaBaseURL string, store AuthorStore, logger zerolog.Logger) *MainstreamChecker {
	return &MainstreamChecker{
		openLibraryBaseURL: strings.TrimRight(strings.TrimSpace(openLibraryBaseURL), "/"),
		wikimediaBaseURL:   strings.TrimRight(strings.TrimSpace(wikimediaBaseURL), "/"),
		client:             &http.Client{Timeout: 10 * time.Second},
		store:              store,
		logger:             logger.With().Str("component", "mainstream_checker").Logger(),
	}
}

// CheckResult is the verdict for one author.
type CheckResult struct {
	Mainstream   bool
	WorkCount    int
	MonthlyViews int
}

// Check fetches the author's work count and last-month pageviews, applies the
// thresholds and persists the verdict. A missing pageviews article reads as
// zero views, not an error.
func (c *MainstreamChecker) Check(ctx context.Context, author db.Author) (CheckResult, error) {
	if c == nil || c.client == nil {
		return CheckResult{}, fmt.Errorf("mainstream checker is not initialized")
	}

	workCount, err := c.fetchWorkCount(ctx, author.Name)
	if err != nil {
		return CheckResult{}, fmt.Errorf("fetch work count for %q: %w", author.Name, err)
	}

	views, err := c.fetchMonthlyViews(ctx, author.Name)
	if err != nil {
		c.logger.Debug().Err(err).Str("author", author.Name).Msg("pageviews unavailable, treating as zero")
		views = 0
	}

	result := CheckResult{
		WorkCount:    workCount,
		MonthlyViews: views,
		Mainstream: views >= mainstreamIconViews ||
			(workCount >= mainstreamMinWorks && views >= mainstreamMinMonthlyViews),
	}

	if c.store != nil {
		if err := c.store.UpdateAuthorMainstream(ctx, author.AuthorID, result.Mainstream, workCount, views, globaltime.UTC()); err != nil {
			return result, err
		}
	}
	return result, nil
}

type authorSearchResponse struct {
	Docs []struct {
		Name      string `json:"name"`
		WorkCount int    `json:"work_count"`
	} `json:"docs"`
}

func (c *MainstreamChecker) fetchWorkCount(ctx context.Context, name string) (int, error) {
	endpoint := fmt.Sprintf("%s/search/authors.json?q=%s&limit=1",
		c.openLibraryBaseURL, url.QueryEscape(strings.TrimSpace(name)))

	var decoded authorSearchResponse
	if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
		return 0, err
	}
	if len(decoded.Docs) == 0 {
		return 0, nil
	}
	return decoded.Docs[0].WorkCount, nil
}

type pageviewsResponse struct {
	Items []struct {
		Views int `json:"views"`
	} `json:"items"`
}

// fetchMonthlyViews sums the author's article pageviews for the previous
// calendar month.
func (c *MainstreamChecker) fetchMonthlyViews(ctx context.Context, name string) (int, error) {
	article := strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	if article == "" {
		return 0, nil
	}

	now := globaltime.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevStart := monthStart.AddDate(0, -1, 0)
	prevEnd := monthStart.AddDate(0, 0, -1)

	endpoint := fmt.Sprintf("%s/metrics/pageviews/per-article/en.wikipedia/all-access/user/%s/monthly/%s/%s",
		c.wikimediaBaseURL,
		url.PathEscape(article),
		prevStart.Format("20060102"),
		prevEnd.Format("20060102"))

	var decoded pageviewsResponse
	if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
		return 0, err
	}
	total := 0
	for _, item := range decoded.Items {
		total += item.Views
	}
	return total, nil
}

func (c *MainstreamChecker) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
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
