package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// AdminClient talks to the qcat-server token administration API.
type AdminClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAdminClient creates an admin API client. Warns if baseURL uses http://.
func NewAdminClient(baseURL, token string) *AdminClient {
	if strings.HasPrefix(baseURL, "http://") {
		fmt.Fprintf(os.Stderr, "warning: sending credentials over unencrypted HTTP connection\n")
	}
	return &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type adminTokenCreateReq struct {
	Description string `json:"description"`
	Permission  string `json:"permission"`
}

// AdminTokenCreateResponse is the decoded response from POST /admin/tokens.
// Token is the raw value; the server keeps only its hash.
type AdminTokenCreateResponse struct {
	Token       string `json:"token"`
	ID          string `json:"id"`
	Description string `json:"description"`
	Permission  string `json:"permission"`
}

// AdminTokenInfo is one entry in the GET /admin/tokens response.
type AdminTokenInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Permission  string `json:"permission"`
}

func (c *AdminClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
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

// CreateToken calls POST /admin/tokens and returns the newly created token.
func (c *AdminClient) CreateToken(ctx context.Context, desc, permission string) (*AdminTokenCreateResponse, error) {
	req := adminTokenCreateReq{Description: desc, Permission: permission}
	var resp AdminTokenCreateResponse
	if err := c.doJSON(ctx, "POST", c.baseURL+"/admin/tokens", req, &resp); err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return &resp, nil
}

// ListTokens calls GET /admin/tokens and returns all token metadata.
func (c *AdminClient) ListTokens(ctx context.Context) ([]AdminTokenInfo, error) {
	var tokens []AdminTokenInfo
	if err := c.doJSON(ctx, "GET", c.baseURL+"/admin/tokens", nil, &tokens); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, nil
}

// DeleteToken calls DELETE /admin/tokens/{id}.
func (c *AdminClient) DeleteToken(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, "DELETE", c.baseURL+"/admin/tokens/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// PruneHistory calls POST /admin/catalogs/{id}/prune, keeping the newest
// keep versions of the catalog.
func (c *AdminClient) PruneHistory(ctx context.Context, catalogID string, keep int) (*PruneResult, error) {
	var resp PruneResult
	url := fmt.Sprintf("%s/admin/catalogs/%s/prune?keep=%d", c.baseURL, catalogID, keep)
	if err := c.doJSON(ctx, "POST", url, nil, &resp); err != nil {
		return nil, fmt.Errorf("prune history: %w", err)
	}
	return &resp, nil
}
