package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/infinite-dreams/igame-bootstrapper/internal/httputil"
)

// ProviderGroup selects which CDN group the service hands out download
// URLs from.
type ProviderGroup string

const (
	ProviderFast   ProviderGroup = "fast"
	ProviderNormal ProviderGroup = "normal"
)

// MaintenanceCode is the error code the service uses when it is down for
// planned maintenance. The error content then holds the UTC end time.
const MaintenanceCode = 500

// MaintenanceTimeLayout is the layout of the maintenance end time.
const MaintenanceTimeLayout = "2006-01-02 15:04:05"

const maxErrorBody = 64 * 1024

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

type VersionResponse struct {
	Version string `json:"version"`
}

type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
}

// ErrorResponse is the body the service returns with non-2xx statuses.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Content string `json:"content"`
}

// StatusError is returned for any non-2xx response that is not a
// maintenance notice.
type StatusError struct {
	URL        string
	StatusCode int
	Code       int
	Content    string
}

func (e *StatusError) Error() string {
	if e.Content != "" {
		return fmt.Sprintf("request %s failed with status %d: %s", e.URL, e.StatusCode, e.Content)
	}
	return fmt.Sprintf("request %s failed with status %d", e.URL, e.StatusCode)
}

// MaintenanceError reports that the service is under maintenance until the
// given time.
type MaintenanceError struct {
	Until time.Time
	Raw   string
}

func (e *MaintenanceError) Error() string {
	if e.Until.IsZero() {
		return "server is under maintenance: " + e.Raw
	}
	return "server is under maintenance until " + e.Until.Format(MaintenanceTimeLayout) + " UTC"
}

// NewClient creates a metadata client. A nil httpClient gets a client with
// the given request timeout.
func NewClient(baseURL string, httpClient *http.Client, retry httputil.RetryConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		retry:      retry,
	}
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Version returns the latest published version of a resource.
func (c *Client) Version(ctx context.Context, resourceID int32) (string, error) {
	var out VersionResponse
	if err := c.get(ctx, fmt.Sprintf("%s/resource/%d/version", c.baseURL, resourceID), &out); err != nil {
		return "", err
	}
	if out.Version == "" {
		return "", fmt.Errorf("resource %d: empty version in response", resourceID)
	}
	return out.Version, nil
}

// DownloadURL returns a download URL for a resource from the given
// provider group.
func (c *Client) DownloadURL(ctx context.Context, resourceID int32, group ProviderGroup) (string, error) {
	if group == "" {
		group = ProviderFast
	}
	q := url.Values{"provider_group": {string(group)}}
	endpoint := fmt.Sprintf("%s/resource/%d/download_url?%s", c.baseURL, resourceID, q.Encode())

	var out DownloadURLResponse
	if err := c.get(ctx, endpoint, &out); err != nil {
		return "", err
	}
	if out.DownloadURL == "" {
		return "", fmt.Errorf("resource %d: empty download_url in response", resourceID)
	}
	return out.DownloadURL, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	headers := http.Header{"Accept": {"application/json"}}
	resp, err := httputil.Do(ctx, c.httpClient, http.MethodGet, endpoint, nil, headers, c.retry)
	if err != nil {
		return fmt.Errorf("failed to send request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

func decodeError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return &StatusError{URL: endpoint, StatusCode: resp.StatusCode, Content: strings.TrimSpace(string(body))}
	}

	if resp.StatusCode == http.StatusInternalServerError && er.Code == MaintenanceCode {
		until, perr := time.ParseInLocation(MaintenanceTimeLayout, strings.TrimSpace(er.Content), time.UTC)
		if perr != nil {
			return &MaintenanceError{Raw: er.Content}
		}
		return &MaintenanceError{Until: until, Raw: er.Content}
	}

	return &StatusError{URL: endpoint, StatusCode: resp.StatusCode, Code: er.Code, Content: er.Content}
}

// IsMaintenance reports whether err carries a maintenance notice.
func IsMaintenance(err error) bool {
	var me *MaintenanceError
	return errors.As(err, &me)
}
