package docstore

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
)

const (
	defaultBatchSize = 200
	defaultTimeout   = 30 * time.Second

	// contentType marks documents that hold user-facing markdown.
	// Other types (directories, leaf blocks) are store internals.
	contentType = "plain"
	leafType    = "leaf"
)

// Config holds connection settings for a CouchDB-compatible store.
type Config struct {
	BaseURL  string // e.g. "http://couch.internal:5984"
	Database string
	Username string // empty = no auth
	Password string

	// BatchSize limits how many changes are pulled per request.
	// Zero means defaultBatchSize.
	BatchSize int

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	Logger *slog.Logger // nil = slog.Default()
}

// Client talks to a CouchDB-compatible document store over HTTP.
// It implements Source.
type Client struct {
	baseURL    string
	database   string
	username   string
	password   string
	batchSize  int
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a document store client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("doc store base URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("doc store database is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid doc store base URL: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		database:   cfg.Database,
		username:   cfg.Username,
		password:   cfg.Password,
		batchSize:  batchSize,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// rawDoc is the store's document shape. Content documents either carry
// the body inline in Content or reference child leaf blocks that each
// hold a fragment of it.
type rawDoc struct {
	ID        string   `json:"_id"`
	Rev       string   `json:"_rev"`
	Type      string   `json:"type"`
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	Path      string   `json:"path"`
	Content   string   `json:"content"`
	Data      string   `json:"data"`
	Children  []string `json:"children"`
	Tags      []string `json:"tags"`
	UpdatedAt string   `json:"updated_at"`
	Deleted   bool     `json:"_deleted"`
}

type changeRow struct {
	Seq     json.RawMessage `json:"seq"`
	ID      string          `json:"id"`
	Deleted bool            `json:"deleted"`
	Doc     *rawDoc         `json:"doc"`
}

type changesResponse struct {
	Results []changeRow     `json:"results"`
	LastSeq json.RawMessage `json:"last_seq"`
	Pending int             `json:"pending"`
}

type allDocsRow struct {
	ID  string  `json:"id"`
	Doc *rawDoc `json:"doc"`
}

type allDocsResponse struct {
	TotalRows int          `json:"total_rows"`
	Rows      []allDocsRow `json:"rows"`
}

// Changes pulls the change feed after the given position, following
// pagination until the feed is drained. Rows for store-internal
// documents are dropped; deletions become tombstone documents.
func (c *Client) Changes(ctx context.Context, since string) ([]Change, string, error) {
	var (
		changes []Change
		lastSeq = since
	)

	for {
		q := url.Values{}
		q.Set("feed", "normal")
		q.Set("include_docs", "true")
		q.Set("limit", fmt.Sprintf("%d", c.batchSize))
		if lastSeq != "" {
			q.Set("since", lastSeq)
		}

		var resp changesResponse
		if err := c.getJSON(ctx, fmt.Sprintf("/%s/_changes", c.database), q, &resp); err != nil {
			return nil, "", fmt.Errorf("fetch changes: %w", err)
		}

		for _, row := range resp.Results {
			seq := seqString(row.Seq)

			if row.Deleted {
				changes = append(changes, Change{
					Seq: seq,
					Doc: Document{ID: row.ID, Deleted: true},
				})
				continue
			}
			if row.Doc == nil || row.Doc.Type != contentType {
				continue
			}

			doc, err := c.assemble(ctx, row.Doc)
			if err != nil {
				return nil, "", fmt.Errorf("assemble document %s: %w", row.ID, err)
			}
			changes = append(changes, Change{Seq: seq, Doc: doc})
		}

		if s := seqString(resp.LastSeq); s != "" {
			lastSeq = s
		}
		if resp.Pending <= 0 || len(resp.Results) == 0 {
			break
		}
	}

	return changes, lastSeq, nil
}

// AllDocuments scans the whole store, paginating by document ID.
func (c *Client) AllDocuments(ctx context.Context) ([]Document, error) {
	var (
		docs     []Document
		startKey string
	)

	for {
		q := url.Values{}
		q.Set("include_docs", "true")
		q.Set("limit", fmt.Sprintf("%d", c.batchSize))
		if startKey != "" {
			q.Set("startkey_docid", startKey)
			q.Set("skip", "1")
		}

		var resp allDocsResponse
		if err := c.getJSON(ctx, fmt.Sprintf("/%s/_all_docs", c.database), q, &resp); err != nil {
			return nil, fmt.Errorf("fetch all docs: %w", err)
		}
		if len(resp.Rows) == 0 {
			break
		}

		for _, row := range resp.Rows {
			if row.Doc == nil || row.Doc.Deleted || row.Doc.Type != contentType {
				continue
			}
			doc, err := c.assemble(ctx, row.Doc)
			if err != nil {
				return nil, fmt.Errorf("assemble document %s: %w", row.ID, err)
			}
			docs = append(docs, doc)
		}

		startKey = resp.Rows[len(resp.Rows)-1].ID
		if len(resp.Rows) < c.batchSize {
			break
		}
	}

	return docs, nil
}

// Get fetches one document by ID.
func (c *Client) Get(ctx context.Context, id string) (Document, error) {
	var raw rawDoc
	err := c.getJSON(ctx, fmt.Sprintf("/%s/%s", c.database, url.PathEscape(id)), nil, &raw)
	if err != nil {
		return Document{}, fmt.Errorf("fetch document %s: %w", id, err)
	}
	if raw.Deleted {
		return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return c.assemble(ctx, &raw)
}

// assemble converts a raw store document into a Document, reassembling
// the body from child leaf blocks when it is not stored inline.
func (c *Client) assemble(ctx context.Context, raw *rawDoc) (Document, error) {
	content := raw.Content
	if content == "" && len(raw.Children) > 0 {
		var parts []string
		for _, childID := range raw.Children {
			var child rawDoc
			err := c.getJSON(ctx, fmt.Sprintf("/%s/%s", c.database, url.PathEscape(childID)), nil, &child)
			if err != nil {
				// Dangling child references happen mid-edit; the
				// next change for this document will pick them up.
				c.logger.Warn("skipping unreadable child block",
					"document_id", raw.ID, "child_id", childID, "error", err)
				continue
			}
			if child.Type == leafType && child.Data != "" {
				parts = append(parts, child.Data)
			}
		}
		content = strings.Join(parts, "")
	}

	slug := raw.Slug
	if slug == "" {
		slug = raw.ID
	}
	title := raw.Title
	if title == "" {
		title = slug
	}

	return Document{
		ID:        raw.ID,
		Slug:      slug,
		Title:     title,
		Path:      raw.Path,
		Tags:      raw.Tags,
		Content:   content,
		Revision:  raw.Rev,
		UpdatedAt: raw.UpdatedAt,
	}, nil
}

// getJSON issues a GET against the store and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// seqString normalizes a feed position to a string. Older stores emit
// numeric sequences, newer ones opaque strings.
func seqString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
