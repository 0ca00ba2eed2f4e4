// Package unitycatalog loads table schemas from a Databricks Unity
// Catalog workspace over its REST API.
package unitycatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/schemavault/schemavault/domain/schema"
)

const (
	catalogsPath = "/api/2.1/unity-catalog/catalogs"
	schemasPath  = "/api/2.1/unity-catalog/schemas"
	tablesPath   = "/api/2.1/unity-catalog/tables"

	defaultTimeout    = 30 * time.Second
	defaultMaxTries   = 5
	defaultInitialDel = 1 * time.Second
)

// Client lists table schemas from Unity Catalog. It implements
// schema.Source.
type Client struct {
	host       string
	token      string
	catalogs   []string
	schemas    []string
	httpClient *http.Client
	maxTries   uint
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithMaxTries sets the total number of attempts per request.
func WithMaxTries(n uint) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxTries = n
		}
	}
}

// WithRetryDelay sets the initial backoff delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.retryDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewClient creates a Unity Catalog client. catalogs and schemas are
// comma-separated filters; empty or "*" means all.
func NewClient(host, token, catalogs, schemas string, opts ...Option) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("unity catalog host is required")
	}
	if token == "" {
		return nil, fmt.Errorf("unity catalog token is required")
	}

	c := &Client{
		host:       strings.TrimRight(host, "/"),
		token:      token,
		catalogs:   parseFilter(catalogs),
		schemas:    parseFilter(schemas),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxTries:   defaultMaxTries,
		retryDelay: defaultInitialDel,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// parseFilter splits a comma-separated filter list. Empty and "*" both
// mean no filtering.
func parseFilter(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p != "*" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func matchesFilter(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

type catalogInfo struct {
	Name string `json:"name"`
}

type schemaInfo struct {
	Name        string `json:"name"`
	CatalogName string `json:"catalog_name"`
}

type columnInfo struct {
	Name     string `json:"name"`
	TypeText string `json:"type_text"`
	Nullable bool   `json:"nullable"`
	Comment  string `json:"comment"`
}

type tableInfo struct {
	Name        string       `json:"name"`
	CatalogName string       `json:"catalog_name"`
	SchemaName  string       `json:"schema_name"`
	Comment     string       `json:"comment"`
	Columns     []columnInfo `json:"columns"`
}

type listResponse struct {
	Catalogs      []catalogInfo `json:"catalogs"`
	Schemas       []schemaInfo  `json:"schemas"`
	Tables        []tableInfo   `json:"tables"`
	NextPageToken string        `json:"next_page_token"`
}

// ListSchemas walks the configured catalogs and schemas and returns the
// table schemas found. Catalogs or schemas that fail to list abort the
// walk so a partial crawl is never mistaken for a full one.
func (c *Client) ListSchemas(ctx context.Context) ([]schema.TableSchema, error) {
	catalogNames, err := c.listCatalogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalogs: %w", err)
	}

	var tables []schema.TableSchema
	for _, catalogName := range catalogNames {
		schemaNames, err := c.listSchemaNames(ctx, catalogName)
		if err != nil {
			return nil, fmt.Errorf("list schemas in %s: %w", catalogName, err)
		}
		for _, schemaName := range schemaNames {
			ts, err := c.listTables(ctx, catalogName, schemaName)
			if err != nil {
				return nil, fmt.Errorf("list tables in %s.%s: %w", catalogName, schemaName, err)
			}
			tables = append(tables, ts...)
		}
	}

	c.logger.Info("unity catalog crawl complete",
		slog.Int("catalogs", len(catalogNames)),
		slog.Int("tables", len(tables)))
	return tables, nil
}

func (c *Client) listCatalogs(ctx context.Context) ([]string, error) {
	var names []string
	err := c.paginate(ctx, catalogsPath, nil, func(page listResponse) {
		for _, cat := range page.Catalogs {
			if matchesFilter(cat.Name, c.catalogs) {
				names = append(names, cat.Name)
			}
		}
	})
	return names, err
}

func (c *Client) listSchemaNames(ctx context.Context, catalogName string) ([]string, error) {
	var names []string
	params := url.Values{"catalog_name": {catalogName}}
	err := c.paginate(ctx, schemasPath, params, func(page listResponse) {
		for _, s := range page.Schemas {
			if matchesFilter(s.Name, c.schemas) {
				names = append(names, s.Name)
			}
		}
	})
	return names, err
}

func (c *Client) listTables(ctx context.Context, catalogName, schemaName string) ([]schema.TableSchema, error) {
	var tables []schema.TableSchema
	params := url.Values{
		"catalog_name": {catalogName},
		"schema_name":  {schemaName},
	}
	err := c.paginate(ctx, tablesPath, params, func(page listResponse) {
		for _, t := range page.Tables {
			columns := make([]schema.Column, len(t.Columns))
			for i, col := range t.Columns {
				columns[i] = schema.NewColumn(col.Name, col.TypeText, col.Nullable, col.Comment)
			}
			tables = append(tables, schema.NewTableSchema(
				t.CatalogName, t.SchemaName, t.Name, columns, t.Comment))
		}
	})
	return tables, err
}

// paginate fetches every page of a list endpoint, following
// next_page_token until exhausted.
func (c *Client) paginate(ctx context.Context, path string, params url.Values, collect func(listResponse)) error {
	pageToken := ""
	for {
		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}

		page, err := c.get(ctx, path, q)
		if err != nil {
			return err
		}
		collect(page)

		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// get performs one GET request with retries on throttling and server
// errors.
func (c *Client) get(ctx context.Context, path string, params url.Values) (listResponse, error) {
	reqURL := c.host + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryDelay

	operation := func() (listResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return listResponse{}, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return listResponse{}, fmt.Errorf("%w: %w", schema.ErrTransient, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return listResponse{}, fmt.Errorf("%w: read response: %w", schema.ErrTransient, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return listResponse{}, fmt.Errorf("%w: %s returned %d", schema.ErrTransient, path, resp.StatusCode)
		default:
			return listResponse{}, backoff.Permanent(fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, truncate(body, 200)))
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return listResponse{}, backoff.Permanent(fmt.Errorf("decode %s response: %w", path, err))
		}
		return page, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.logger.Warn("retrying unity catalog request",
				slog.String("path", path),
				slog.Duration("delay", d),
				slog.Any("error", err))
		}),
	)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ schema.Source = (*Client)(nil)
