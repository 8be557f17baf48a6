package beasiswa

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"infortic-scraper/utils"
)

const (
	DefaultSearchEndpoint = "https://www.googleapis.com"
	searchCacheSize       = 512
)

// SearchClient queries Google Custom Search for the first result of a
// query. Answers, including empty ones, are cached per query.
type SearchClient struct {
	client *resty.Client
	apiKey string
	cx     string
	cache  *lru.Cache[string, string]
	logger *slog.Logger
}

type searchResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
}

// NewSearchClient creates a client for the given API key and search
// engine ID.
func NewSearchClient(apiKey, cx string, timeout time.Duration, logger *slog.Logger) (*SearchClient, error) {
	cache, err := lru.New[string, string](searchCacheSize)
	if err != nil {
		return nil, fmt.Errorf("search cache: %w", err)
	}
	if logger == nil {
		logger = utils.NopLogger()
	}

	client := resty.New()
	client.SetBaseURL(DefaultSearchEndpoint)
	client.SetTimeout(timeout)
	client.SetHeader("accept", "application/json")

	return &SearchClient{
		client: client,
		apiKey: apiKey,
		cx:     cx,
		cache:  cache,
		logger: logger.With(slog.String("component", "custom_search")),
	}, nil
}

// Client exposes the underlying HTTP client.
func (c *SearchClient) Client() *resty.Client {
	return c.client
}

// First returns the link of the top result for query, or "" when there
// is none. image restricts the search to images.
func (c *SearchClient) First(ctx context.Context, query string, image bool) (string, error) {
	cacheKey := query
	if image {
		cacheKey = "image:" + query
	}
	if link, ok := c.cache.Get(cacheKey); ok {
		return link, nil
	}

	params := map[string]string{
		"key": c.apiKey,
		"cx":  c.cx,
		"q":   query,
		"num": "1",
	}
	if image {
		params["searchType"] = "image"
	}

	var out searchResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/customsearch/v1")
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("custom search returned status %d", res.StatusCode())
	}

	link := ""
	if len(out.Items) > 0 {
		link = out.Items[0].Link
	}
	c.cache.Add(cacheKey, link)
	return link, nil
}

// Lookup finds a logo image and an official registration page for a
// scholarship title. Failed queries are logged and yield "".
func (c *SearchClient) Lookup(ctx context.Context, title string) (imageURL, registrationURL string) {
	imageQuery := fmt.Sprintf("%q logo OR icon", title)
	registrationQuery := fmt.Sprintf("%q pendaftaran OR registrasi site:.ac.id OR site:.edu OR site:.org", title)

	var err error
	if imageURL, err = c.First(ctx, imageQuery, true); err != nil {
		c.logger.Error("image search failed", slog.String("query", imageQuery), slog.Any("error", err))
	}
	if registrationURL, err = c.First(ctx, registrationQuery, false); err != nil {
		c.logger.Error("registration search failed", slog.String("query", registrationQuery), slog.Any("error", err))
	}
	return imageURL, registrationURL
}
