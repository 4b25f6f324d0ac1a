// Package client is a Go client for the pivot service API.
package client

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

	"github.com/sievedata/pivot/api"
)

const (
	// DefaultPort is the port pivotd listens on by default.
	DefaultPort      = 9867
	DefaultUserAgent = "pivotd-client-golang"
)

type Connection struct {
	client        *http.Client
	defaultHeader http.Header
	hostURL       string
}

// NewConnection creates a new connection with a base URL set up to
// talk to http://localhost:defaultport.
func NewConnection() *Connection {
	return NewConnectionTo("http://localhost:" + strconv.Itoa(DefaultPort))
}

// NewConnectionTo creates a new connection with a base URL derived
// from the hostURL argument.
func NewConnectionTo(hostURL string) *Connection {
	return &Connection{
		client:        &http.Client{},
		defaultHeader: http.Header{"User-Agent": []string{DefaultUserAgent}},
		hostURL:       hostURL,
	}
}

// ClientHostURL allows us to print the host in log messages and internal error messages
func (c *Connection) ClientHostURL() string {
	return c.hostURL
}

func (c *Connection) SetUserAgent(useragent string) {
	c.defaultHeader.Set("User-Agent", useragent)
}

// Compute posts a pivot configuration for computation and returns the
// computed result.
func (c *Connection) Compute(ctx context.Context, configID string, req api.PivotRequest) (*api.PivotResult, error) {
	var result api.PivotResult
	err := c.doAndUnmarshal(ctx, http.MethodPost, pivotPath(configID), req, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Data fetches the cached result for a configuration.
func (c *Connection) Data(ctx context.Context, configID string) (*api.PivotResult, error) {
	var result api.PivotResult
	err := c.doAndUnmarshal(ctx, http.MethodGet, pivotPath(configID), nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Refresh recomputes a configuration from its cached request.
func (c *Connection) Refresh(ctx context.Context, configID string) (*api.PivotResult, error) {
	var result api.PivotResult
	err := c.doAndUnmarshal(ctx, http.MethodPost, pivotPath(configID)+"/refresh", nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches the compute status record for a configuration.
func (c *Connection) Status(ctx context.Context, configID string) (*api.StatusRecord, error) {
	var rec api.StatusRecord
	err := c.doAndUnmarshal(ctx, http.MethodGet, pivotPath(configID)+"/status", nil, &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save exports the cached result for a configuration as a parquet
// object.
func (c *Connection) Save(ctx context.Context, configID string, req api.SaveRequest) (*api.SaveResponse, error) {
	var res api.SaveResponse
	err := c.doAndUnmarshal(ctx, http.MethodPost, pivotPath(configID)+"/save", req, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Connection) Version(ctx context.Context) (string, error) {
	var res api.VersionResponse
	if err := c.doAndUnmarshal(ctx, http.MethodGet, "/version", nil, &res); err != nil {
		return "", err
	}
	return res.Version, nil
}

// Ping checks that the service is up.
func (c *Connection) Ping(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

func pivotPath(configID string) string {
	return "/pivot/" + url.PathEscape(configID)
}

func (c *Connection) doAndUnmarshal(ctx context.Context, method, path string, body, i interface{}) error {
	res, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return json.NewDecoder(res.Body).Decode(i)
}

func (c *Connection) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.hostURL+path, r)
	if err != nil {
		return nil, err
	}
	for key, val := range c.defaultHeader {
		req.Header[key] = val
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, parseError(res)
	}
	return res, nil
}

// parseError parses an error from an http.Response with an error status code.
func parseError(r *http.Response) error {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	resErr := &ErrorResponse{Response: r}
	var apierr api.Error
	if json.Unmarshal(body, &apierr) == nil && apierr.Message != "" {
		resErr.Err = &apierr
	} else {
		resErr.Err = errors.New(string(body))
	}
	return resErr
}

type ErrorResponse struct {
	*http.Response
	Err error
}

func (e *ErrorResponse) Unwrap() error {
	return e.Err
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("status code %d: %v", e.StatusCode, e.Err)
}
