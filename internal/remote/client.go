package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilupskalvis/qcat/internal/models"
)

// CatalogClient defines the contract for communicating with a qcat-server.
type CatalogClient interface {
	ListCatalogs(ctx context.Context, offset, limit int, name string) ([]*models.CatalogPreview, error)
	CreateCatalog(ctx context.Context, name string, pairs []models.QAPair) (*models.Catalog, error)
	GetCatalog(ctx context.Context, id string) (*models.Catalog, error)
	GetPreview(ctx context.Context, id string) (*models.CatalogPreview, error)
	ListPairs(ctx context.Context, id string, offset, limit int) ([]models.QAPair, error)

	// EditCatalog submits one edit batch. The returned catalog may carry a
	// different id than the one edited.
	EditCatalog(ctx context.Context, id string, edit *models.CatalogEdit) (*models.Catalog, error)
	ReplacePairs(ctx context.Context, id string, pairs []models.QAPair) (*models.Catalog, error)

	GetHistory(ctx context.Context, id string) (*models.VersionHistory, error)
	DeleteCatalog(ctx context.Context, id string) (*DeleteCatalogResult, error)
}

// HTTPClient implements CatalogClient over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP-based catalog client.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) catalogURL(path string, query url.Values) string {
	u := c.baseURL + "/api/v1/qa-catalogs" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func pageQuery(offset, limit int) url.Values {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	var body io.Reader
	headers := map[string]string{"Content-Type": "application/json"}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// ListCatalogs returns the newest version of every catalog.
func (c *HTTPClient) ListCatalogs(ctx context.Context, offset, limit int, name string) ([]*models.CatalogPreview, error) {
	q := pageQuery(offset, limit)
	if name != "" {
		q.Set("name", name)
	}
	var previews []*models.CatalogPreview
	if err := c.doJSON(ctx, "GET", c.catalogURL("", q), nil, &previews); err != nil {
		return nil, fmt.Errorf("list catalogs: %w", err)
	}
	return previews, nil
}

// CreateCatalog creates a new catalog.
func (c *HTTPClient) CreateCatalog(ctx context.Context, name string, pairs []models.QAPair) (*models.Catalog, error) {
	req := &CreateCatalogRequest{Name: name, Pairs: pairs}
	var catalog models.Catalog
	if err := c.doJSON(ctx, "POST", c.catalogURL("", nil), req, &catalog); err != nil {
		return nil, fmt.Errorf("create catalog: %w", err)
	}
	return &catalog, nil
}

// GetCatalog returns catalog metadata.
func (c *HTTPClient) GetCatalog(ctx context.Context, id string) (*models.Catalog, error) {
	var catalog models.Catalog
	if err := c.doJSON(ctx, "GET", c.catalogURL("/"+url.PathEscape(id), nil), nil, &catalog); err != nil {
		return nil, fmt.Errorf("get catalog %s: %w", id, err)
	}
	return &catalog, nil
}

// GetPreview returns the catalog summary including its pair count.
func (c *HTTPClient) GetPreview(ctx context.Context, id string) (*models.CatalogPreview, error) {
	var preview models.CatalogPreview
	if err := c.doJSON(ctx, "GET", c.catalogURL("/"+url.PathEscape(id)+"/preview", nil), nil, &preview); err != nil {
		return nil, fmt.Errorf("get preview %s: %w", id, err)
	}
	return &preview, nil
}

// ListPairs fetches one page of pairs.
func (c *HTTPClient) ListPairs(ctx context.Context, id string, offset, limit int) ([]models.QAPair, error) {
	var pairs []models.QAPair
	if err := c.doJSON(ctx, "GET", c.catalogURL("/"+url.PathEscape(id)+"/qa-pairs", pageQuery(offset, limit)), nil, &pairs); err != nil {
		return nil, fmt.Errorf("list pairs of %s: %w", id, err)
	}
	return pairs, nil
}

// EditCatalog submits an edit batch.
func (c *HTTPClient) EditCatalog(ctx context.Context, id string, edit *models.CatalogEdit) (*models.Catalog, error) {
	var catalog models.Catalog
	if err := c.doJSON(ctx, "PATCH", c.catalogURL("/"+url.PathEscape(id), nil), edit, &catalog); err != nil {
		return nil, fmt.Errorf("edit catalog %s: %w", id, err)
	}
	return &catalog, nil
}

// ReplacePairs uploads a full replacement of the catalog's pairs.
func (c *HTTPClient) ReplacePairs(ctx context.Context, id string, pairs []models.QAPair) (*models.Catalog, error) {
	var catalog models.Catalog
	req := &ReplacePairsRequest{Pairs: pairs}
	if err := c.doJSON(ctx, "PUT", c.catalogURL("/"+url.PathEscape(id)+"/qa-pairs", nil), req, &catalog); err != nil {
		return nil, fmt.Errorf("replace pairs of %s: %w", id, err)
	}
	return &catalog, nil
}

// GetHistory lists the versions of a catalog, newest first.
func (c *HTTPClient) GetHistory(ctx context.Context, id string) (*models.VersionHistory, error) {
	var history models.VersionHistory
	if err := c.doJSON(ctx, "GET", c.catalogURL("/"+url.PathEscape(id)+"/history", nil), nil, &history); err != nil {
		return nil, fmt.Errorf("get history of %s: %w", id, err)
	}
	return &history, nil
}

// DeleteCatalog removes one catalog version.
func (c *HTTPClient) DeleteCatalog(ctx context.Context, id string) (*DeleteCatalogResult, error) {
	var result DeleteCatalogResult
	if err := c.doJSON(ctx, "DELETE", c.catalogURL("/"+url.PathEscape(id), nil), nil, &result); err != nil {
		return nil, fmt.Errorf("delete catalog %s: %w", id, err)
	}
	return &result, nil
}

// RemoteError represents a structured error from the server.
type RemoteError struct {
	Code    string
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%d): %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &RemoteError{
			Code:    "unknown",
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	return &RemoteError{
		Code:    errResp.Error,
		Message: errResp.Message,
		Status:  resp.StatusCode,
	}
}
