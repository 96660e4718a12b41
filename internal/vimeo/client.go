// Package vimeo is a thin client for the hosted video platform: pull uploads,
// transcode status, embed URLs, privacy and embed-domain settings.
package vimeo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Ingestion states reported by Status.
const (
	StatusUploading   = "uploading"
	StatusTranscoding = "transcoding"
	StatusAvailable   = "available"
	StatusNotFound    = "not_found"
)

// ErrNotConfigured is returned by every operation when the access token is absent.
var ErrNotConfigured = errors.New("vimeo not configured")

const acceptHeader = "application/vnd.vimeo.*+json;version=3.4"

// Config holds hosted-video platform settings.
type Config struct {
	AccessToken string
	APIBase     string
	Timeout     time.Duration
}

// Client calls the Vimeo REST API.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger
}

// New creates a Vimeo client. A missing token yields a disabled client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.vimeo.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AccessToken == "" {
		logger.Warn("vimeo disabled (access token not set)")
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Enabled reports whether the platform API is available.
func (c *Client) Enabled() bool { return c != nil && c.cfg.AccessToken != "" }

// PullUpload asks the platform to fetch the file from sourceURL itself and
// returns the new video ID synchronously; ingestion continues in the background.
func (c *Client) PullUpload(ctx context.Context, sourceURL, title, description string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	body := map[string]interface{}{
		"upload": map[string]string{
			"approach": "pull",
			"link":     sourceURL,
		},
		"name":        title,
		"description": description,
	}
	var out struct {
		URI string `json:"uri"`
	}
	if err := c.do(ctx, http.MethodPost, "/me/videos", body, &out); err != nil {
		return "", fmt.Errorf("pull upload: %w", err)
	}
	id := out.URI[strings.LastIndex(out.URI, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("pull upload: unexpected video uri %q", out.URI)
	}
	return id, nil
}

// Status returns the ingestion state and the duration in seconds once known.
func (c *Client) Status(ctx context.Context, videoID string) (string, int, error) {
	if !c.Enabled() {
		return "", 0, ErrNotConfigured
	}
	var out struct {
		Duration  int `json:"duration"`
		Transcode struct {
			Status string `json:"status"`
		} `json:"transcode"`
		Upload struct {
			Status string `json:"status"`
		} `json:"upload"`
	}
	err := c.do(ctx, http.MethodGet, "/videos/"+url.PathEscape(videoID)+"?fields=duration,transcode.status,upload.status", nil, &out)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return StatusNotFound, 0, nil
		}
		return "", 0, fmt.Errorf("video status: %w", err)
	}
	switch {
	case out.Upload.Status == "in_progress":
		return StatusUploading, out.Duration, nil
	case out.Transcode.Status == "complete":
		return StatusAvailable, out.Duration, nil
	default:
		return StatusTranscoding, out.Duration, nil
	}
}

// EmbedURL returns the access-controlled player URL, or empty if the platform
// has not registered the video yet.
func (c *Client) EmbedURL(ctx context.Context, videoID string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	var out struct {
		PlayerEmbedURL string `json:"player_embed_url"`
	}
	err := c.do(ctx, http.MethodGet, "/videos/"+url.PathEscape(videoID)+"?fields=player_embed_url", nil, &out)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("embed url: %w", err)
	}
	return out.PlayerEmbedURL, nil
}

// SetPrivacy hides the video from public listing and restricts embedding to the
// domain allow-list ("whitelist" embed mode).
func (c *Client) SetPrivacy(ctx context.Context, videoID, view string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	body := map[string]interface{}{
		"privacy": map[string]string{
			"view":  view,
			"embed": "whitelist",
		},
	}
	if err := c.do(ctx, http.MethodPatch, "/videos/"+url.PathEscape(videoID), body, nil); err != nil {
		return fmt.Errorf("set privacy: %w", err)
	}
	return nil
}

// AddEmbedDomain adds a domain to the video's embed allow-list.
func (c *Client) AddEmbedDomain(ctx context.Context, videoID, domain string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	path := "/videos/" + url.PathEscape(videoID) + "/privacy/domains/" + url.PathEscape(domain)
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("add embed domain: %w", err)
	}
	return nil
}

// Delete removes the video from the platform.
func (c *Client) Delete(ctx context.Context, videoID string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	err := c.do(ctx, http.MethodDelete, "/videos/"+url.PathEscape(videoID), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

var errNotFound = errors.New("not found")

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", acceptHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
