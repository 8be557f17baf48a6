package storage

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"infortic-scraper/models"
)

// PostgRESTBackend talks to a Supabase project through its REST API.
type PostgRESTBackend struct {
	client *resty.Client
}

// NewPostgRESTBackend builds a backend for the project at baseURL
// (e.g. https://xyz.supabase.co). Every request is bounded by timeout.
func NewPostgRESTBackend(baseURL, apiKey string, timeout time.Duration) *PostgRESTBackend {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/") + "/rest/v1")
	client.SetTimeout(timeout)
	client.SetHeader("apikey", apiKey)
	client.SetAuthToken(apiKey)
	client.SetHeader("accept", "application/json")
	return &PostgRESTBackend{client: client}
}

// Client exposes the underlying HTTP client.
func (b *PostgRESTBackend) Client() *resty.Client {
	return b.client
}

// Delete issues DELETE /<table>?<column>=not.is.null and asks for the
// deleted rows back so the count can be reported.
func (b *PostgRESTBackend) Delete(ctx context.Context, table string, where Predicate) (*Response, error) {
	key, value := where.PostgREST()
	res, err := b.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam(key, value).
		Delete("/" + url.PathEscape(table))
	if err != nil {
		return nil, err
	}
	return decodeResponse(res), nil
}

// InsertMany posts all rows in one request. Rows conflicting with the
// table's unique constraint are ignored by the server.
func (b *PostgRESTBackend) InsertMany(ctx context.Context, spec models.TableSpec, rows []models.Record) (*Response, error) {
	req := b.client.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetHeader("Prefer", "return=representation,resolution=ignore-duplicates").
		SetQueryParam("columns", strings.Join(models.Batch(rows).Columns(), ",")).
		SetBody(rows)
	if len(spec.ConflictColumns) > 0 {
		req.SetQueryParam("on_conflict", strings.Join(spec.ConflictColumns, ","))
	}

	res, err := req.Post("/" + url.PathEscape(spec.Name))
	if err != nil {
		return nil, err
	}
	return decodeResponse(res), nil
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (b *PostgRESTBackend) Close() error {
	return nil
}

func decodeResponse(res *resty.Response) *Response {
	resp := &Response{
		StatusCode: res.StatusCode(),
		Raw:        res.Body(),
	}
	body := res.Body()

	if res.IsError() {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Message != "" || apiErr.Code != "") {
			resp.Error = &apiErr
		}
		return resp
	}

	if len(body) > 0 {
		var data []models.Record
		if err := json.Unmarshal(body, &data); err == nil {
			resp.Data = data
			resp.Affected = len(data)
		}
	}
	return resp
}
