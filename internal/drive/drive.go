// Package drive talks to the Google Drive API on behalf of one account's
// delegated credentials. Access tokens are refreshed in place on 401
// responses; every rotation is reported through a typed callback so the
// caller can persist the new pair before the next request depends on it.
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sheetport/sheetport/internal/util"
)

// FilesEndpoint is the Drive v2 files resource.
const FilesEndpoint = "https://www.googleapis.com/drive/v2/files"

// File is the subset of Drive file metadata the extractor needs.
type File struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	MimeType    string            `json:"mimeType"`
	ExportLinks map[string]string `json:"exportLinks"`
}

// NotFoundError reports a 404 for a file id: the file is gone or the account
// lost access to it.
type NotFoundError struct {
	FileID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file %s not found", e.FileID)
}

// RequestError reports any other non-2xx response, carrying the status and a
// bounded body excerpt.
type RequestError struct {
	StatusCode int
	Body       []byte
	URL        string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("drive request failed with status %d: %s", e.StatusCode, util.Excerpt(e.Body))
}

// IsClientError reports whether the failure is attributable to the request
// or credentials (4xx) rather than to Google (5xx).
func (e *RequestError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// TokenRefreshFunc receives the rotated token pair. Returning an error
// aborts the in-flight API call; continuing with a token the store doesn't
// know about would leave future runs holding a stale credential.
type TokenRefreshFunc func(accessToken, refreshToken string) error

// API is the remote spreadsheet surface the extractor depends on.
type API interface {
	SetCredentials(accessToken, refreshToken string)
	OnTokenRefresh(fn TokenRefreshFunc)
	GetFile(ctx context.Context, fileID string) (*File, error)
	Export(ctx context.Context, url string) ([]byte, error)
}

// Client implements API over HTTP. It is meant for the extractor's strictly
// sequential call pattern and is not safe for concurrent use.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	endpoint   string

	accessToken  string
	refreshToken string
	onRefresh    TokenRefreshFunc
}

// NewClient builds a Client around the given OAuth application config.
func NewClient(oauth *oauth2.Config) *Client {
	return &Client{
		oauth:    oauth,
		endpoint: FilesEndpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // export downloads can be large
		},
	}
}

// SetEndpoint overrides the files endpoint (tests).
func (c *Client) SetEndpoint(url string) { c.endpoint = url }

// SetCredentials installs an account's current token pair.
func (c *Client) SetCredentials(accessToken, refreshToken string) {
	c.accessToken = accessToken
	c.refreshToken = refreshToken
}

// OnTokenRefresh registers the callback invoked after every token rotation.
func (c *Client) OnTokenRefresh(fn TokenRefreshFunc) { c.onRefresh = fn }

// GetFile fetches a file's metadata by id.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	body, err := c.get(ctx, c.endpoint+"/"+fileID, "application/json")
	if err != nil {
		var re *RequestError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil, &NotFoundError{FileID: fileID}
		}
		return nil, err
	}
	var file File
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, fmt.Errorf("decoding file metadata for %s: %w", fileID, err)
	}
	return &file, nil
}

// Export downloads an export URL's content.
func (c *Client) Export(ctx context.Context, url string) ([]byte, error) {
	return c.get(ctx, url, "text/csv; charset=UTF-8")
}

// get performs an authorized GET, refreshing the access token once on 401.
func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	status, body, err := c.doOnce(ctx, url, accept)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		status, body, err = c.doOnce(ctx, url, accept)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status > 299 {
		return nil, &RequestError{StatusCode: status, Body: body, URL: url}
	}
	return body, nil
}

func (c *Client) doOnce(ctx context.Context, url, accept string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("drive request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading drive response from %s: %w", url, err)
	}
	return resp.StatusCode, body, nil
}

// refresh exchanges the refresh token for a new access token and reports the
// rotation. A callback failure fails the refresh.
func (c *Client) refresh(ctx context.Context) error {
	if c.refreshToken == "" {
		return fmt.Errorf("access token rejected and no refresh token available")
	}

	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("refreshing access token: %w", err)
	}

	c.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	if c.onRefresh != nil {
		if err := c.onRefresh(c.accessToken, c.refreshToken); err != nil {
			return fmt.Errorf("persisting refreshed tokens: %w", err)
		}
	}
	return nil
}

// ExportURL picks the CSV export link from file metadata, deriving one from
// the PDF link (format substituted, sheet gid appended) when no direct CSV
// link is offered.
func ExportURL(file *File, sheetID string) (string, error) {
	if link, ok := file.ExportLinks["text/csv"]; ok {
		return link, nil
	}
	link, ok := file.ExportLinks["application/pdf"]
	if !ok {
		return "", fmt.Errorf("no csv or pdf export link for file %s", file.ID)
	}
	return strings.ReplaceAll(link, "pdf", "csv") + "&gid=" + sheetID, nil
}
