package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/presence"
)

// HTTPClient implements RulesClient using the tagrules HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Reads ---

// GetTree fetches the current snapshot. When known is not the zero revision
// and still current, it returns ErrNotModified.
func (c *HTTPClient) GetTree(ctx context.Context, known model.Revision) (*model.Tree, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/rules", nil)
	if err != nil {
		return nil, err
	}
	if known != (model.Revision{}) {
		req.Header.Set("If-None-Match", strconv.Quote(known.String()))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}

	var tree model.Tree
	if err := decodeResponse(resp, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (c *HTTPClient) Version(ctx context.Context) (int64, error) {
	var resp struct {
		Version int64 `json:"version"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/rules/version", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Version, nil
}

func (c *HTTPClient) Log(ctx context.Context, since int64, limit int) ([]*model.VersionLogEntry, error) {
	params := url.Values{}
	if since > 0 {
		params.Set("since", strconv.FormatInt(since, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/rules/log"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Entries []*model.VersionLogEntry `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	if err := c.doJSON(ctx, http.MethodGet, "/v1/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) Editors(ctx context.Context, staleAfter time.Duration) ([]*presence.Entry, error) {
	path := "/v1/editors"
	if staleAfter > 0 {
		path += "?stale_threshold_secs=" + strconv.Itoa(int(staleAfter.Seconds()))
	}
	var resp struct {
		Editors []*presence.Entry `json:"editors"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Editors, nil
}

func (c *HTTPClient) Expand(ctx context.Context, tags []string) (*ExpandResult, error) {
	body := map[string]any{"tags": tags}
	var res ExpandResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/expand", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Groups ---

func (c *HTTPClient) CreateGroup(ctx context.Context, req Request, name string, parentID *int64, enabled bool) (*model.Group, int64, error) {
	body := struct {
		Request
		Name     string `json:"name"`
		ParentID *int64 `json:"parent_id,omitempty"`
		Enabled  bool   `json:"enabled"`
	}{req, name, parentID, enabled}

	var resp mutationResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/rules/groups", body, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Group, resp.NewVersion, nil
}

func (c *HTTPClient) UpdateGroup(ctx context.Context, req Request, id int64, name *string, enabled *bool) (int64, error) {
	body := struct {
		Request
		Name    *string `json:"name,omitempty"`
		Enabled *bool   `json:"enabled,omitempty"`
	}{req, name, enabled}
	return c.mutate(ctx, http.MethodPatch, groupPath(id, ""), body)
}

// MoveGroup re-parents a group. A nil parentID makes it a root.
func (c *HTTPClient) MoveGroup(ctx context.Context, req Request, id int64, parentID *int64) (int64, error) {
	body := struct {
		Request
		ParentID *int64 `json:"parent_id"`
	}{req, parentID}
	return c.mutate(ctx, http.MethodPost, groupPath(id, "/move"), body)
}

// DeleteGroup deletes a group and its descendants, returning how many
// groups were removed.
func (c *HTTPClient) DeleteGroup(ctx context.Context, req Request, id int64) (int, int64, error) {
	var resp mutationResponse
	if err := c.doJSON(ctx, http.MethodDelete, groupPath(id, ""), req, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Removed, resp.NewVersion, nil
}

// --- Edges ---

type edgeBody struct {
	Request
	ParentID int64 `json:"parent_id"`
	ChildID  int64 `json:"child_id"`
}

func (c *HTTPClient) LinkGroup(ctx context.Context, req Request, parentID, childID int64) (int64, error) {
	return c.mutate(ctx, http.MethodPost, "/v1/rules/edges", edgeBody{req, parentID, childID})
}

func (c *HTTPClient) UnlinkGroup(ctx context.Context, req Request, parentID, childID int64) (int64, error) {
	return c.mutate(ctx, http.MethodDelete, "/v1/rules/edges", edgeBody{req, parentID, childID})
}

// --- Keywords ---

type keywordBody struct {
	Request
	Text string `json:"text"`
}

func (c *HTTPClient) AddKeyword(ctx context.Context, req Request, groupID int64, text string) (*model.Keyword, int64, error) {
	var resp mutationResponse
	if err := c.doJSON(ctx, http.MethodPost, groupPath(groupID, "/keywords"), keywordBody{req, text}, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Keyword, resp.NewVersion, nil
}

func (c *HTTPClient) RemoveKeyword(ctx context.Context, req Request, id int64) (int64, error) {
	return c.mutate(ctx, http.MethodDelete, keywordPath(id), req)
}

// RemoveKeywordText removes a keyword from a group by its text.
func (c *HTTPClient) RemoveKeywordText(ctx context.Context, req Request, groupID int64, text string) (int64, error) {
	return c.mutate(ctx, http.MethodDelete, groupPath(groupID, "/keywords"), keywordBody{req, text})
}

func (c *HTTPClient) SetKeywordEnabled(ctx context.Context, req Request, id int64, enabled bool) (int64, error) {
	body := struct {
		Request
		Enabled bool `json:"enabled"`
	}{req, enabled}
	return c.mutate(ctx, http.MethodPatch, keywordPath(id), body)
}

func (c *HTTPClient) Batch(ctx context.Context, req *BatchRequest) (*model.BatchResult, error) {
	var res model.BatchResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/rules/batch", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Import/export ---

func (c *HTTPClient) Export(ctx context.Context) (*model.LegacyExport, error) {
	var doc model.LegacyExport
	if err := c.doJSON(ctx, http.MethodGet, "/v1/export", nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Import replaces the whole rule set with doc.
func (c *HTTPClient) Import(ctx context.Context, clientID string, doc *model.LegacyExport) (*model.ImportSummary, error) {
	path := "/v1/import"
	if clientID != "" {
		path += "?client_id=" + url.QueryEscape(clientID)
	}
	var resp struct {
		Summary *model.ImportSummary `json:"summary"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, doc, &resp); err != nil {
		return nil, err
	}
	return resp.Summary, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func groupPath(id int64, suffix string) string {
	return "/v1/rules/groups/" + strconv.FormatInt(id, 10) + suffix
}

func keywordPath(id int64) string {
	return "/v1/rules/keywords/" + strconv.FormatInt(id, 10)
}

// mutate performs a write that answers with the common envelope and
// returns the new version.
func (c *HTTPClient) mutate(ctx context.Context, method, path string, body any) (int64, error) {
	var resp mutationResponse
	if err := c.doJSON(ctx, method, path, body, &resp); err != nil {
		return 0, err
	}
	return resp.NewVersion, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, result)
}

func decodeResponse(resp *http.Response, result any) error {
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			ConflictError
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			if resp.StatusCode == http.StatusConflict && errResp.CurrentVersion > 0 {
				return &errResp.ConflictError
			}
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
