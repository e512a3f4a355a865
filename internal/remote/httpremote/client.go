// Package httpremote talks to the collection API over HTTP/JSON.
//
// Routes:
//
//	GET    /entities?limit=&offset=&active=&search=&sort=
//	GET    /entities/{id}
//	POST   /entities
//	PUT    /entities/{id}
//	PATCH  /entities/{id}
//	DELETE /entities/{id}
//	PUT    /entities/order
//
// Non-2xx responses become *remote.Error with the kind derived from the
// status code. Transport failures are returned wrapped, unclassified.
package httpremote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/remote"
)

// TraceHeader carries the server's trace id on error responses.
const TraceHeader = "X-Trace-Id"

// TokenFunc returns the bearer token for a request.
type TokenFunc func(ctx context.Context) (string, error)

// Client implements remote.Remote and remote.Reorderer.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   TokenFunc // optional
	Logger  *slog.Logger
}

var (
	_ remote.Remote    = (*Client)(nil)
	_ remote.Reorderer = (*Client)(nil)
)

// New creates a client for baseURL using http.DefaultClient.
func New(baseURL string, token TokenFunc) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    http.DefaultClient,
		Token:   token,
		Logger:  slog.Default(),
	}
}

// errorBody is the JSON error envelope served with non-2xx responses.
type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
		TraceID string         `json:"trace_id,omitempty"`
	} `json:"error"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

type reorderResponse struct {
	Items []entity.Entity `json:"items"`
}

func (c *Client) List(ctx context.Context, q entity.ListQuery) (entity.ListResult, error) {
	var res entity.ListResult
	err := c.do(ctx, http.MethodGet, "/entities?"+encodeQuery(q).Encode(), nil, &res)
	return res, err
}

func (c *Client) Get(ctx context.Context, id string) (entity.Entity, error) {
	var e entity.Entity
	err := c.do(ctx, http.MethodGet, entityPath(id), nil, &e)
	return e, err
}

func (c *Client) Create(ctx context.Context, p entity.Payload) (entity.Entity, error) {
	var e entity.Entity
	err := c.do(ctx, http.MethodPost, "/entities", p, &e)
	return e, err
}

func (c *Client) Update(ctx context.Context, id string, p entity.Payload) (entity.Entity, error) {
	var e entity.Entity
	err := c.do(ctx, http.MethodPut, entityPath(id), p, &e)
	return e, err
}

func (c *Client) Patch(ctx context.Context, id string, p entity.Payload) (entity.Entity, error) {
	var e entity.Entity
	err := c.do(ctx, http.MethodPatch, entityPath(id), p, &e)
	return e, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, entityPath(id), nil, nil)
}

func (c *Client) Reorder(ctx context.Context, ids []string) ([]entity.Entity, error) {
	var res reorderResponse
	err := c.do(ctx, http.MethodPut, "/entities/order", reorderRequest{IDs: ids}, &res)
	return res.Items, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := decodeError(resp)
		c.logger().Debug("remote error response",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", rerr.Code,
		)
		return rerr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func decodeError(resp *http.Response) *remote.Error {
	rerr := &remote.Error{
		Kind:    remote.KindForStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		TraceID: resp.Header.Get(TraceHeader),
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		rerr.Code = body.Error.Code
		rerr.Message = body.Error.Message
		rerr.Details = body.Error.Details
		if body.Error.TraceID != "" {
			rerr.TraceID = body.Error.TraceID
		}
		return rerr
	}

	rerr.Message = strings.TrimSpace(string(data))
	if rerr.Message == "" {
		rerr.Message = http.StatusText(resp.StatusCode)
	}
	return rerr
}

func entityPath(id string) string {
	return "/entities/" + url.PathEscape(id)
}

func encodeQuery(q entity.ListQuery) url.Values {
	v := url.Values{}
	if q.Limit != 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset != 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Active != nil {
		v.Set("active", strconv.FormatBool(*q.Active))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return v
}
