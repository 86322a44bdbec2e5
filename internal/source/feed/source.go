package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"feed_syncer/internal/domain"
	"feed_syncer/internal/metrics"
	"feed_syncer/internal/normalize"
)

const (
	SourceID   = "feed"
	SourceName = "Paginated content feed"
)

// Config holds feed source configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	MaxPages  int
}

// Source pages through a newest-first JSON feed.
type Source struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	maxPages   int
	logger     *slog.Logger
}

// New creates a new feed source.
func New(cfg Config, logger *slog.Logger) *Source {
	ua := cfg.UserAgent
	if ua == "" {
		ua = "FeedSyncer/1.0"
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   cfg.BaseURL,
		userAgent: ua,
		maxPages:  cfg.MaxPages,
		logger:    logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// FetchNewSince follows the feed cursor and returns the items whose id is not
// in existingIDs, in fetch order. It stops at the first page that yields no
// unseen item or that has no next cursor. Items already collected during this
// fetch count as seen.
func (s *Source) FetchNewSince(ctx context.Context, existingIDs map[string]struct{}, startURL string) ([]domain.SourceItem, error) {
	seen := make(map[string]struct{}, len(existingIDs))
	for id := range existingIDs {
		seen[id] = struct{}{}
	}

	var fresh []domain.SourceItem
	pageURL := s.startURL(startURL)

	for page := 0; ; page++ {
		resp, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d (%s): %w", page, pageURL, err)
		}

		unseen := normalize.Unseen(resp.Results, seen)
		for _, it := range unseen {
			seen[it.ID()] = struct{}{}
		}
		fresh = append(fresh, unseen...)

		s.logger.Debug("fetched page",
			"page", page,
			"items", len(resp.Results),
			"new", len(unseen),
			"total_new", len(fresh),
		)

		next := resp.NextURL()
		if len(unseen) == 0 || next == "" {
			break
		}
		if s.maxPages > 0 && page+1 >= s.maxPages {
			s.logger.Warn("page limit reached", "max_pages", s.maxPages)
			break
		}

		pageURL, err = resolve(pageURL, next)
		if err != nil {
			return nil, fmt.Errorf("page %d next cursor %q: %w", page, next, err)
		}
	}

	return fresh, nil
}

// FetchAll follows the cursor until the feed reports no next page or returns
// an empty page, and returns every item seen.
func (s *Source) FetchAll(ctx context.Context, startURL string) ([]domain.SourceItem, error) {
	var all []domain.SourceItem
	pageURL := s.startURL(startURL)

	for page := 0; ; page++ {
		resp, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d (%s): %w", page, pageURL, err)
		}

		all = append(all, resp.Results...)

		s.logger.Debug("fetched page",
			"page", page,
			"items", len(resp.Results),
			"total", len(all),
		)

		next := resp.NextURL()
		if len(resp.Results) == 0 || next == "" {
			break
		}
		if s.maxPages > 0 && page+1 >= s.maxPages {
			s.logger.Warn("page limit reached", "max_pages", s.maxPages)
			break
		}

		pageURL, err = resolve(pageURL, next)
		if err != nil {
			return nil, fmt.Errorf("page %d next cursor %q: %w", page, next, err)
		}
	}

	s.logger.Info("crawled feed", "items", len(all))
	return all, nil
}

func (s *Source) startURL(u string) string {
	if u == "" {
		return s.baseURL
	}
	return u
}

func (s *Source) fetchPage(ctx context.Context, pageURL string) (*domain.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var page domain.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	metrics.PageFetched()
	return &page, nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
