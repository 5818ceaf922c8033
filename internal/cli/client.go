package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// JobHeader carries the id of a job queued by a request
const JobHeader = "X-Job-ID"

// ResponseError is returned when the api answers with an unexpected status
type ResponseError struct {
	Title   string
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %d %s", e.Title, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s: %d %s", e.Title, e.Code, e.Message)
}

// Client talks to the atmosphere api
type Client struct {
	c     http.Client
	addr  string
	token string
}

// New creates a client for the api at address. token may be empty.
func New(address, token string) *Client {
	return &Client{
		c:     http.Client{Timeout: 30 * time.Second},
		addr:  strings.TrimSuffix(address, "/"),
		token: token,
	}
}

// SetTimeout changes how long a request may take in total
func (c *Client) SetTimeout(d time.Duration) {
	c.c.Timeout = d
}

// URLString joins endpoint onto the api address
func (c *Client) URLString(endpoint string) string {
	return c.addr + "/" + strings.TrimPrefix(endpoint, "/")
}

// GetMany fetches a list of resources
func (c *Client) GetMany(title, endpoint string) (JMapSlice, error) {
	ret := JMapSlice{}
	_, err := c.do(title, http.MethodGet, endpoint, nil, http.StatusOK, &ret)
	return ret, err
}

// Get fetches a single resource
func (c *Client) Get(title, endpoint string) (JMap, error) {
	ret := JMap{}
	_, err := c.do(title, http.MethodGet, endpoint, nil, http.StatusOK, &ret)
	return ret, err
}

// Post sends body and expects status back. The job id header, if any, is
// returned alongside the resource.
func (c *Client) Post(title, endpoint string, body interface{}, status int) (JMap, string, error) {
	ret := JMap{}
	resp, err := c.do(title, http.MethodPost, endpoint, body, status, &ret)
	if err != nil {
		return nil, "", err
	}
	return ret, resp.Header.Get(JobHeader), nil
}

// Del deletes a resource. The job id header, if any, is returned alongside
// the resource.
func (c *Client) Del(title, endpoint string, status int) (JMap, string, error) {
	ret := JMap{}
	resp, err := c.do(title, http.MethodDelete, endpoint, nil, status, &ret)
	if err != nil {
		return nil, "", err
	}
	return ret, resp.Header.Get(JobHeader), nil
}

func (c *Client) do(title, method, endpoint string, body interface{}, status int, dest interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.URLString(endpoint), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp, processResponse(resp, title, status, dest)
}

func processResponse(resp *http.Response, title string, status int, dest interface{}) error {
	if resp.StatusCode != status {
		rerr := &ResponseError{Title: title, Code: resp.StatusCode}
		apiErr := struct {
			Message string `json:"message"`
		}{}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			rerr.Message = apiErr.Message
		}
		return rerr
	}

	if status == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse %s json: %w", title, err)
	}
	return nil
}
