package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/qcat/internal/core"
	"github.com/kilupskalvis/qcat/internal/models"
	"github.com/kilupskalvis/qcat/internal/remote"
	"github.com/kilupskalvis/qcat/internal/remote/metastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken      = "test-token-123"
	testReadToken  = "test-token-ro"
	testAdminToken = "admin-secret"
)

// testTokenStore implements TokenStore for tests.
type testTokenStore struct {
	tokens map[string]*TokenInfo
}

func newTestTokenStore() *testTokenStore {
	s := &testTokenStore{tokens: make(map[string]*TokenInfo)}
	for id, tok := range map[string]struct{ raw, perm string }{
		"tok-rw": {testToken, PermissionWrite},
		"tok-ro": {testReadToken, PermissionRead},
	} {
		hash := HashToken(tok.raw)
		s.tokens[hash] = &TokenInfo{ID: id, TokenHash: hash, Desc: id, Permission: tok.perm}
	}
	return s
}

func (t *testTokenStore) GetByHash(hash string) (*TokenInfo, error) {
	return t.tokens[hash], nil
}

func (t *testTokenStore) UpdateLastUsed(_ string) error {
	return nil
}

func (t *testTokenStore) ListTokens() ([]*TokenInfo, error) {
	tokens := make([]*TokenInfo, 0, len(t.tokens))
	for _, tok := range t.tokens {
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func (t *testTokenStore) DeleteToken(id string) error {
	for hash, tok := range t.tokens {
		if tok.ID == id {
			delete(t.tokens, hash)
			return nil
		}
	}
	return fmt.Errorf("token '%s' not found", id)
}

func (t *testTokenStore) CreateToken(desc, permission string) (string, *TokenInfo, error) {
	rawToken := "test-created-token"
	hash := HashToken(rawToken)
	info := &TokenInfo{ID: "tok-new", TokenHash: hash, Desc: desc, Permission: permission}
	t.tokens[hash] = info
	return rawToken, info, nil
}

func newTestServer(t *testing.T) (*httptest.Server, metastore.CatalogStore) {
	t.Helper()

	store, err := metastore.NewBboltStore(filepath.Join(t.TempDir(), "meta.db"), metastore.EditFork)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := DefaultServerConfig()
	cfg.AdminToken = testAdminToken

	h, cleanup := Handler(store, newTestTokenStore(), cfg, logger)
	t.Cleanup(cleanup)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	return ts, store
}

func authReq(method, url, token string, body io.Reader) *http.Request {
	req, _ := http.NewRequest(method, url, body)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func seedCatalog(t *testing.T, store metastore.CatalogStore, n int) *models.Catalog {
	t.Helper()
	pairs := make([]models.QAPair, n)
	for i := range pairs {
		pairs[i] = models.QAPair{Question: fmt.Sprintf("Q%d", i), ExpectedOutput: fmt.Sprintf("A%d", i)}
	}
	c, err := store.CreateCatalog(context.Background(), "support", pairs)
	require.NoError(t, err)
	return c
}

func decodeErrorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e remote.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e.Error
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_MissingToken(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/qa-catalogs")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAuth_InvalidToken(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.DefaultClient.Do(authReq("GET", ts.URL+"/api/v1/qa-catalogs", "wrong-token", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "auth_failed", decodeErrorCode(t, resp))
}

func TestAuth_ReadOnlyCannotEdit(t *testing.T) {
	ts, store := newTestServer(t)
	c := seedCatalog(t, store, 1)

	edit := models.CatalogEdit{Deletions: []string{}}
	resp, err := http.DefaultClient.Do(authReq("PATCH", ts.URL+"/api/v1/qa-catalogs/"+c.ID, testReadToken, jsonBody(t, edit)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = http.DefaultClient.Do(authReq("GET", ts.URL+"/api/v1/qa-catalogs/"+c.ID, testReadToken, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCatalogs_CreateAndGet(t *testing.T) {
	ts, _ := newTestServer(t)

	req := remote.CreateCatalogRequest{
		Name:  "billing",
		Pairs: []models.QAPair{{Question: "How do I pay?", ExpectedOutput: "By card."}},
	}
	resp, err := http.DefaultClient.Do(authReq("POST", ts.URL+"/api/v1/qa-catalogs", testToken, jsonBody(t, req)))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Catalog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "billing", created.Name)
	assert.Equal(t, 1, created.Revision)

	resp, err = http.DefaultClient.Do(authReq("GET", ts.URL+"/api/v1/qa-catalogs/"+created.ID+"/preview", testToken, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var preview models.CatalogPreview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&preview))
	assert.Equal(t, 1, preview.Length)
}

func TestCatalogs_CreateWithoutName(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.DefaultClient.Do(authReq("POST", ts.URL+"/api/v1/qa-catalogs", testToken, jsonBody(t, remote.CreateCatalogRequest{})))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation_failed", decodeErrorCode(t, resp))
}

func TestCatalogs_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.DefaultClient.Do(authReq("GET", ts.URL+"/api/v1/qa-catalogs/nope", testToken, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeErrorCode(t, resp))
}

func TestCatalogs_BadJSON(t *testing.T) {
	ts, store := newTestServer(t)
	c := seedCatalog(t, store, 1)

	resp, err := http.DefaultClient.Do(authReq("PATCH", ts.URL+"/api/v1/qa-catalogs/"+c.ID, testToken, bytes.NewReader([]byte("{"))))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCatalogs_EditRejectsUnknownPair(t *testing.T) {
	ts, store := newTestServer(t)
	c := seedCatalog(t, store, 2)

	edit := models.CatalogEdit{Deletions: []string{"not-a-pair"}}
	resp, err := http.DefaultClient.Do(authReq("PATCH", ts.URL+"/api/v1/qa-catalogs/"+c.ID, testToken, jsonBody(t, edit)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	history, err := store.GetHistory(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, history.Versions, 1)
}

func TestPairs_BadPageParams(t *testing.T) {
	ts, store := newTestServer(t)
	c := seedCatalog(t, store, 1)

	for _, q := range []string{"offset=-1", "limit=0", "limit=abc", "limit=5000"} {
		resp, err := http.DefaultClient.Do(authReq("GET", ts.URL+"/api/v1/qa-catalogs/"+c.ID+"/qa-pairs?"+q, testToken, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestClient_RoundTrip(t *testing.T) {
	ts, store := newTestServer(t)
	c := seedCatalog(t, store, 3)
	client := remote.NewHTTPClient(ts.URL, testToken)
	ctx := context.Background()

	pairs, err := client.ListPairs(ctx, c.ID, 1, 5)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "Q1", pairs[0].Question)

	list, err := client.ListCatalogs(ctx, 0, 10, "SUPP")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	replaced, err := client.ReplacePairs(ctx, c.ID, []models.QAPair{{Question: "only", ExpectedOutput: "one"}})
	require.NoError(t, err)
	assert.Equal(t, 2, replaced.Revision)
	assert.Equal(t, c.ID, replaced.PreviousVersionID)

	history, err := client.GetHistory(ctx, replaced.ID)
	require.NoError(t, err)
	require.Len(t, history.Versions, 2)
	assert.Equal(t, replaced.ID, history.Versions[0].VersionID)

	deleted, err := client.DeleteCatalog(ctx, replaced.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted.PreviousRevisionID)
	assert.Equal(t, c.ID, *deleted.PreviousRevisionID)

	deleted, err = client.DeleteCatalog(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted.PreviousRevisionID)

	_, err = client.GetCatalog(ctx, c.ID)
	assert.True(t, remote.IsNotFound(err))
}

// TestSession_SaveOverHTTP drives a full edit session against the server
// and checks that the session follows the forked version.
func TestSession_SaveOverHTTP(t *testing.T) {
	ts, store := newTestServer(t)
	c := seedCatalog(t, store, 3)
	ctx := context.Background()

	s := core.NewSession(remote.NewHTTPClient(ts.URL, testToken), 2, nil)
	require.NoError(t, s.Open(ctx, c.ID))
	rows := s.Rows()
	require.Len(t, rows, 2)

	edited := rows[0].QAPair
	edited.Question = "Q0 reworded"
	require.NoError(t, s.Edit(edited.ID, edited))
	require.NoError(t, s.Delete(rows[1].ID))
	_, err := s.Add(models.NewQAPair{Question: "Q new", ExpectedOutput: "A new"})
	require.NoError(t, err)

	result, err := s.Save(ctx)
	require.NoError(t, err)
	assert.True(t, result.Forked())
	assert.Equal(t, c.ID, result.PreviousID)
	assert.Equal(t, result.CatalogID, s.Catalog().ID)
	assert.False(t, s.HasChanges())

	all, err := core.FetchAllPairs(ctx, remote.NewHTTPClient(ts.URL, testToken), result.CatalogID, 2, nil)
	require.NoError(t, err)
	var questions []string
	for _, p := range all {
		questions = append(questions, p.Question)
	}
	assert.Equal(t, []string{"Q0 reworded", "Q2", "Q new"}, questions)

	old, err := store.ListPairs(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, old, 3)
}

func TestAdmin_Tokens(t *testing.T) {
	ts, _ := newTestServer(t)
	admin := remote.NewAdminClient(ts.URL, testAdminToken)
	ctx := context.Background()

	created, err := admin.CreateToken(ctx, "ci", PermissionWrite)
	require.NoError(t, err)
	assert.Equal(t, "test-created-token", created.Token)
	assert.Equal(t, PermissionWrite, created.Permission)

	tokens, err := admin.ListTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 3)

	require.NoError(t, admin.DeleteToken(ctx, created.ID))
	err = admin.DeleteToken(ctx, created.ID)
	assert.True(t, remote.IsNotFound(err))
}

func TestAdmin_WrongToken(t *testing.T) {
	ts, _ := newTestServer(t)

	_, err := remote.NewAdminClient(ts.URL, testToken).ListTokens(context.Background())
	var re *remote.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
}

func TestAdmin_InvalidPermission(t *testing.T) {
	ts, _ := newTestServer(t)

	_, err := remote.NewAdminClient(ts.URL, testAdminToken).CreateToken(context.Background(), "x", "admin")
	var re *remote.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
}

func TestAdmin_Prune(t *testing.T) {
	ts, store := newTestServer(t)
	ids := forkVersions(t, store, 4)
	admin := remote.NewAdminClient(ts.URL, testAdminToken)

	result, err := admin.PruneHistory(context.Background(), ids[3], 1)
	require.NoError(t, err)
	assert.Equal(t, 4, result.VersionsScanned)
	assert.Equal(t, 3, result.VersionsDeleted)

	_, err = admin.PruneHistory(context.Background(), ids[3], 0)
	var re *remote.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.Stop()

	now := time.Now()
	assert.True(t, rl.allow("tok", now))
	assert.True(t, rl.allow("tok", now))
	assert.False(t, rl.allow("tok", now))
	assert.True(t, rl.allow("other", now))
	assert.True(t, rl.allow("tok", now.Add(2*time.Minute)))
}
