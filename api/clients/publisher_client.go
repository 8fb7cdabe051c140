package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/content-publisher/api"
	"github.com/ruteri/content-publisher/cryptoutils"
	"github.com/ruteri/content-publisher/interfaces"
)

// PublisherClient talks to the /api endpoints of a publishing server.
type PublisherClient struct {
	baseURL    string
	host       string
	signerID   string
	signerKey  *ecdsa.PrivateKey
	httpClient *http.Client
}

type ClientOption func(*PublisherClient)

// WithSigner signs every write request as id.
func WithSigner(id string, key *ecdsa.PrivateKey) ClientOption {
	return func(c *PublisherClient) {
		c.signerID = id
		c.signerKey = key
	}
}

// WithHTTPClient replaces the default client, which times out after 30 seconds.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *PublisherClient) {
		c.httpClient = httpClient
	}
}

// NewPublisherClient creates a client for the server at baseURL
// (e.g. "http://localhost:8080").
func NewPublisherClient(baseURL string, opts ...ClientOption) *PublisherClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}

	c := &PublisherClient{
		baseURL:    baseURL,
		host:       host,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PublisherClient) objectURL(p string) (string, error) {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return "", err
	}
	segments := strings.Split(clean, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + api.ObjectsPath + "/" + strings.Join(segments, "/"), nil
}

func (c *PublisherClient) newRequest(ctx context.Context, method, reqURL string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.signerKey != nil && method != http.MethodGet && method != http.MethodHead {
		if err := cryptoutils.SignRequest(req, body, c.signerID, c.signerKey); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (c *PublisherClient) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request failed: %v", interfaces.ErrBackendUnavailable, op, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(msg))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", detail, interfaces.ErrNotFound)
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%s: %w", detail, interfaces.ErrInvalidPath)
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%s: %w", detail, interfaces.ErrBackendUnavailable)
	default:
		return nil, fmt.Errorf("%s failed with code %d: %s", op, resp.StatusCode, detail)
	}
}

// Put uploads body. The body is buffered so it can be signed.
func (c *PublisherClient) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	reqURL, err := c.objectURL(path)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, reqURL, data)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.do(req, "put")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *PublisherClient) Delete(ctx context.Context, path string, contentType string) error {
	reqURL, err := c.objectURL(path)
	if err != nil {
		return err
	}
	if contentType != "" {
		reqURL += "?" + url.Values{api.ContentTypeParam: []string{contentType}}.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req, "delete")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *PublisherClient) Get(ctx context.Context, path string) (*interfaces.Object, error) {
	reqURL, err := c.objectURL(path)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, "get")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &interfaces.Object{Body: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Exists issues a HEAD request. Transport errors count as absent.
func (c *PublisherClient) Exists(ctx context.Context, path string) bool {
	reqURL, err := c.objectURL(path)
	if err != nil {
		return false
	}

	req, err := c.newRequest(ctx, http.MethodHead, reqURL, nil)
	if err != nil {
		return false
	}

	resp, err := c.do(req, "exists")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (c *PublisherClient) List(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+api.ObjectsPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, "list")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var files []string
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}
	if files == nil {
		files = []string{}
	}
	return files, nil
}

func (c *PublisherClient) Rollback(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+api.RollbackPath, []byte{})
	if err != nil {
		return err
	}

	resp, err := c.do(req, "rollback")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *PublisherClient) Commit(ctx context.Context, message string) error {
	body, err := json.Marshal(api.CommitRequest{Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+api.CommitPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, "commit")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Available reports whether the server answers /readyz with 200.
func (c *PublisherClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *PublisherClient) Name() string {
	return "remote-" + c.host
}

func (c *PublisherClient) LocationURI() string {
	return c.baseURL
}
