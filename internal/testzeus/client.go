package testzeus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	authPath    = "/api/collections/users/auth-with-password"
	refreshPath = "/api/collections/users/auth-refresh"
)

// Client talks to the TestZeus PocketBase API on behalf of one user.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	creds Credentials
	now   func() time.Time

	mu    sync.RWMutex
	token string
	user  AuthRecord

	Tests        *Collection[Test]
	TestRuns     *Collection[TestRun]
	Environments *Collection[Environment]
	TestData     *Collection[TestDatum]
	Tags         *Collection[Tag]
}

// NewClient creates an unauthenticated client for creds.
func NewClient(creds Credentials) *Client {
	c := &Client{
		BaseURL:    creds.Endpoint(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		now:        time.Now,
	}
	c.Tests = newCollection[Test](c, CollectionTests)
	c.TestRuns = newCollection[TestRun](c, CollectionTestRuns)
	c.Environments = newCollection[Environment](c, CollectionEnvironments)
	c.TestData = newCollection[TestDatum](c, CollectionTestData)
	c.Tags = newCollection[Tag](c, CollectionTags)
	return c
}

// User returns the authenticated user record.
func (c *Client) User() AuthRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Token returns the current bearer token, empty before authentication.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Authenticate performs the password handshake and stores the token.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.creds.Validate(); err != nil {
		return err
	}

	body := map[string]string{
		"identity": c.creds.Email,
		"password": c.creds.Password,
	}

	var resp authResponse
	if err := c.do(ctx, http.MethodPost, authPath, nil, body, &resp, false); err != nil {
		return fmt.Errorf("authenticating %s: %w", c.creds.Email, err)
	}
	if resp.Token == "" {
		return fmt.Errorf("authenticating %s: empty token in response", c.creds.Email)
	}

	c.setAuth(resp)
	return nil
}

// EnsureAuthenticated confirms the stored token is usable, refreshing it
// when it is close to expiry.
func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return ErrNotAuthenticated
	}

	if exp, err := tokenExpiry(token); err == nil && c.now().Add(refreshWindow).Before(exp) {
		return nil
	}

	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) error {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, refreshPath, nil, nil, &resp, true); err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("refreshing token: empty token in response")
	}

	c.setAuth(resp)
	return nil
}

func (c *Client) setAuth(resp authResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = resp.Token
	c.user = resp.Record
}

// do sends a JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any, authed bool) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, query, body, authed)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

// upload sends a multipart PATCH appending the file at filePath to field.
func (c *Client) upload(ctx context.Context, path, field, filePath string, out any) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field+"+", filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("reading %s: %w", filePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPatch, path, nil, &buf, true)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, authed bool) (*http.Request, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if authed {
		token := c.Token()
		if token == "" {
			return nil, ErrNotAuthenticated
		}
		req.Header.Set("Authorization", token)
	}

	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	return c.handleResponse(resp, out)
}

// handleResponse turns 4xx/5xx into *APIError and decodes everything else.
func (c *Client) handleResponse(resp *http.Response, out any) error {
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(body) > 0 && json.Unmarshal(body, apiErr) != nil {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// RunTest starts a run of the test identified by idOrName.
func (c *Client) RunTest(ctx context.Context, idOrName, environment, tag string) (*TestRun, error) {
	test, err := c.Tests.GetOne(ctx, idOrName)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s run %s", test.Name, c.now().UTC().Format("2006-01-02 15:04:05"))
	return c.startRun(ctx, name, test.ID, environment, tag)
}

// CreateAndStart creates a named test run for test and leaves it pending so
// the platform picks it up.
func (c *Client) CreateAndStart(ctx context.Context, name, test, environment, tag string) (*TestRun, error) {
	resolved, err := c.Tests.GetOne(ctx, test)
	if err != nil {
		return nil, err
	}
	return c.startRun(ctx, name, resolved.ID, environment, tag)
}

func (c *Client) startRun(ctx context.Context, name, testID, environment, tag string) (*TestRun, error) {
	payload := Payload{
		"name":   name,
		"test":   testID,
		"status": StatusPending,
	}

	if environment != "" {
		env, err := c.Environments.GetOne(ctx, environment)
		if err != nil {
			return nil, fmt.Errorf("environment %q: %w", environment, err)
		}
		payload["environment"] = env.ID
	}
	if tag != "" {
		t, err := c.Tags.GetOne(ctx, tag)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", tag, err)
		}
		payload["tag"] = t.ID
	}

	return c.TestRuns.Create(ctx, payload)
}
