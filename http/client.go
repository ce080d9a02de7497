// Package http provides a client for the log storage HTTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the server reports 404.
	ErrNotFound = errors.New("http: not found")

	// ErrUnauthorized is returned when the server reports 401.
	ErrUnauthorized = errors.New("http: unauthorized")
)

// StatusError reports an unexpected response status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("http: unexpected status %d: %s", e.StatusCode, e.Message)
}

// Link addresses one inner file.
type Link struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// UploadResponse describes a stored archive.
type UploadResponse struct {
	// Location is the index URL of the stored archive.
	Location string
	Links    []Link
}

// FileInfo describes an inner file.
type FileInfo struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// File is an open inner file download.
type File struct {
	io.ReadCloser
	FileInfo
}

// Client talks to one log storage server.
type Client struct {
	base     *url.URL
	client   *nethttp.Client
	headers  nethttp.Header
	username string
	password string
}

// Option configures a Client.
type Option func(*Client)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(c *Client) {
		if headers == nil {
			return
		}
		c.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(nethttp.Header)
		}
		c.headers.Set(key, value)
	}
}

// WithBasicAuth authenticates each request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// NewClient creates a Client for the server at baseURL,
// e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("http: parse server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("http: server URL %q must use http or https", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	c := &Client{base: base, client: nethttp.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = nethttp.DefaultClient
	}
	return c, nil
}

// Upload sends an archive of size bytes under name.
// Use a negative size when the length is unknown.
func (c *Client) Upload(ctx context.Context, name string, body io.Reader, size int64) (*UploadResponse, error) {
	req, err := c.newRequest(ctx, nethttp.MethodPut, "api/logs/"+url.PathEscape(name), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/zip")
	if size >= 0 {
		req.ContentLength = size
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode != nethttp.StatusCreated {
		return nil, statusError(resp)
	}
	var links []Link
	if err := json.NewDecoder(resp.Body).Decode(&links); err != nil {
		return nil, fmt.Errorf("http: decode upload response: %w", err)
	}
	return &UploadResponse{Location: resp.Header.Get("Location"), Links: links}, nil
}

// Index lists the files of an archive.
func (c *Client) Index(ctx context.Context, archiveID string) ([]Link, error) {
	var links []Link
	if err := c.getJSON(ctx, "api/logs/"+url.PathEscape(archiveID), &links); err != nil {
		return nil, err
	}
	return links, nil
}

// Status returns the server's reported settings.
func (c *Client) Status(ctx context.Context) (map[string]string, error) {
	var status map[string]string
	if err := c.getJSON(ctx, "api/status", &status); err != nil {
		return nil, err
	}
	return status, nil
}

// Stat returns the metadata of the inner file at link without
// downloading it. link is a URL returned by Upload or Index, or a path
// relative to the server URL.
func (c *Client) Stat(ctx context.Context, link string) (*FileInfo, error) {
	req, err := c.newRequest(ctx, nethttp.MethodHead, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode != nethttp.StatusOK {
		return nil, statusError(resp)
	}
	info := fileInfo(resp)
	return &info, nil
}

// Open downloads the inner file at link. The caller must close the file.
func (c *Client) Open(ctx context.Context, link string) (*File, error) {
	req, err := c.newRequest(ctx, nethttp.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != nethttp.StatusOK {
		defer drain(resp)
		return nil, statusError(resp)
	}
	return &File{ReadCloser: resp.Body, FileInfo: fileInfo(resp)}, nil
}

func (c *Client) getJSON(ctx context.Context, ref string, v any) error {
	req, err := c.newRequest(ctx, nethttp.MethodGet, ref, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != nethttp.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("http: decode %s: %w", ref, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, ref string, body io.Reader) (*nethttp.Request, error) {
	// Links from the API are server-relative; other refs resolve against the base.
	u, err := c.base.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("http: resolve %q: %w", ref, err)
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func fileInfo(resp *nethttp.Response) FileInfo {
	info := FileInfo{
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if info.Size < 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			info.Size = n
		}
	}
	if t, err := nethttp.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		info.LastModified = t
	}
	return info
}

func statusError(resp *nethttp.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	switch resp.StatusCode {
	case nethttp.StatusNotFound:
		return ErrNotFound
	case nethttp.StatusUnauthorized:
		return ErrUnauthorized
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
}

func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
