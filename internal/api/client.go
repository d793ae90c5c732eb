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

	"go-soundcloud-download/internal/models"

	log "github.com/sirupsen/logrus"
)

// Error kinds returned by the client. Callers should match with errors.Is.
var (
	ErrNetwork      = errors.New("network error")
	ErrParse        = errors.New("malformed API response")
	ErrNotFound     = errors.New("API resource not found")
	ErrUnauthorized = errors.New("API request unauthorized (check client ID)")
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
)

const clientIDParam = "client_id"

// Client talks to the catalog API. It appends the client credential to every request.
type Client struct {
	BaseURL    string
	ClientID   string
	HttpClient *http.Client

	// streamClient shares HttpClient's transport but never follows redirects, so a
	// stream reference answering 302 still hands its JSON body back to us.
	streamClient *http.Client
}

// NewClient creates a new API client. A nil httpClient gets a 30s default.
func NewClient(baseURL, clientID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	streamClient := *httpClient
	streamClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ClientID:     clientID,
		HttpClient:   httpClient,
		streamClient: &streamClient,
	}
}

// ResolveUser maps a username to the opaque identifier used by the other endpoints.
func (c *Client) ResolveUser(ctx context.Context, name string) (models.User, error) {
	if name == "" {
		return models.User{}, fmt.Errorf("%w: empty username", ErrNotFound)
	}
	reqURL, err := c.endpoint("users", name)
	if err != nil {
		return models.User{}, err
	}

	var payload struct {
		ID models.OpaqueID `json:"id"`
	}
	if err := c.getJSON(ctx, c.HttpClient, reqURL, &payload, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.User{}, fmt.Errorf("user %q: %w", name, err)
		}
		return models.User{}, err
	}

	id := string(payload.ID)
	if id == "" {
		return models.User{}, fmt.Errorf("%w: user %q has no id in response", ErrNotFound, name)
	}
	log.WithFields(log.Fields{"user": name, "id": id}).Debug("Resolved user")
	return models.User{Name: name, ID: id}, nil
}

// ListTracks returns the user's tracks in the order the API lists them.
// An empty listing is not an error.
func (c *Client) ListTracks(ctx context.Context, userID string) ([]models.CatalogItem, error) {
	reqURL, err := c.endpoint("users", userID, "tracks")
	if err != nil {
		return nil, err
	}

	var items []models.CatalogItem
	if err := c.getJSON(ctx, c.HttpClient, reqURL, &items, false); err != nil {
		return nil, err
	}
	log.WithField("userID", userID).Debugf("Listed %d tracks", len(items))
	return items, nil
}

// ResolveStream queries a stream reference and returns the location of the actual
// binary resource it points at.
func (c *Client) ResolveStream(ctx context.Context, streamURL string) (models.StreamLocation, error) {
	if streamURL == "" {
		return models.StreamLocation{}, fmt.Errorf("%w: empty stream reference", ErrParse)
	}
	u, err := url.Parse(streamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return models.StreamLocation{}, fmt.Errorf("%w: invalid stream reference %q", ErrParse, streamURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c.withCredential(u)

	var loc models.StreamLocation
	if err := c.getJSON(ctx, c.streamClient, u, &loc, true); err != nil {
		if errors.Is(err, ErrNetwork) || errors.Is(err, ErrParse) {
			return models.StreamLocation{}, err
		}
		// Any other status means the reference did not yield a location.
		return models.StreamLocation{}, fmt.Errorf("%w: stream reference: %w", ErrParse, err)
	}
	if loc.Location == "" {
		return models.StreamLocation{}, fmt.Errorf("%w: no location in response from %s", ErrParse, Redact(u))
	}
	return loc, nil
}

// endpoint builds {BaseURL}/{segments...}?client_id=... with each segment path-escaped.
func (c *Client) endpoint(segments ...string) (*url.URL, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u, err := url.Parse(c.BaseURL + "/" + strings.Join(escaped, "/"))
	if err != nil {
		return nil, fmt.Errorf("building API URL: %w", err)
	}
	c.withCredential(u)
	return u, nil
}

func (c *Client) withCredential(u *url.URL) {
	q := u.Query()
	q.Set(clientIDParam, c.ClientID)
	u.RawQuery = q.Encode()
}

// getJSON performs a GET and decodes the body into out. When allowRedirect is set,
// 3xx responses are treated as carrying a usable body.
func (c *Client) getJSON(ctx context.Context, hc *http.Client, u *url.URL, out any, allowRedirect bool) error {
	safeURL := Redact(u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("error creating request for %s: %w", safeURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		log.WithError(err).Debugf("GET %s failed", safeURL)
		return fmt.Errorf("%w: GET %s: %v", ErrNetwork, safeURL, redactError(err, c.ClientID))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case allowRedirect && resp.StatusCode >= 300 && resp.StatusCode < 400:
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: GET %s returned %d", ErrUnauthorized, safeURL, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: GET %s", ErrNotFound, safeURL)
	default:
		return fmt.Errorf("%w: GET %s returned %d", ErrHttpStatus, safeURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body of %s: %v", ErrNetwork, safeURL, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Debugf("Response body causing unmarshal error: %s", truncate(body, 512))
		return fmt.Errorf("%w: decoding %s: %v", ErrParse, safeURL, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
