// internal/github/client.go
package github

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAPIBaseURL = "https://api.github.com"
	defaultRawBaseURL = "https://raw.githubusercontent.com"

	// Every write needs the current SHA of the path as a concurrency
	// token; a stale token gets this many refetch-and-retry rounds.
	maxWriteAttempts = 3

	// GitHub rejects contents-API bodies near 100MB; generated images
	// are a fraction of that, so anything bigger is a broken download.
	maxImageBytes = 25 << 20
)

type Config struct {
	Token  string
	Repo   string // "owner/name"
	Branch string
}

// Client stores generated images as files in a GitHub repository via the
// contents API and serves them back through raw.githubusercontent.com.
type Client struct {
	cfg        Config
	apiBaseURL string
	rawBaseURL string
	httpClient *http.Client
	downloader *http.Client  // fetches source bytes from the generation host
	retryUnit  time.Duration // backoff is attempt × retryUnit
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("missing required GitHub configuration parameters")
	}
	if !strings.Contains(cfg.Repo, "/") {
		return nil, fmt.Errorf("repo %q must be in owner/name form", cfg.Repo)
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &Client{
		cfg:        cfg,
		apiBaseURL: defaultAPIBaseURL,
		rawBaseURL: defaultRawBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		downloader: &http.Client{Timeout: 30 * time.Second},
		retryUnit:  time.Second,
	}, nil
}

// APIError carries the upstream status and message so conflict signals
// can be recognised by content.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api: %d %s", e.StatusCode, e.Message)
}

// isSHAConflict reports whether err is the optimistic-concurrency signal:
// someone else wrote the path between our SHA fetch and our write.
func isSHAConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusConflict {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "does not match") || strings.Contains(msg, "expected")
}

// Upload fetches the image bytes from sourceURL and commits them under
// avatars/<avatar>/. Returns the public raw URL of the stored file.
func (c *Client) Upload(ctx context.Context, sourceURL, prompt, avatarName, ext string) (string, error) {
	content, err := c.download(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("fetch source image: %w", err)
	}

	path := buildKey(avatarName, prompt, ext)
	message := fmt.Sprintf("Add generated image for %s", avatarName)

	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		sha, _, err := c.GetFileInfo(ctx, path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if err := c.putContents(ctx, path, content, sha, message); err == nil {
			log.Printf("✅ [GITHUB] Uploaded %s (%d bytes)", path, len(content))
			return c.RawURL(path), nil
		} else if !isSHAConflict(err) {
			return "", fmt.Errorf("upload %s: %w", path, err)
		} else {
			lastErr = err
		}
		if attempt < maxWriteAttempts {
			delay := time.Duration(attempt) * c.retryUnit
			log.Printf("🔄 [GITHUB] SHA conflict on %s (attempt %d/%d), retrying in %v", path, attempt, maxWriteAttempts, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", fmt.Errorf("upload cancelled: %w", ctx.Err())
			}
		}
	}
	return "", fmt.Errorf("upload %s: retries exhausted: %w", path, lastErr)
}

// Delete removes the file behind a public raw URL. A file that is
// already gone counts as success so repeated deletes are harmless.
func (c *Client) Delete(ctx context.Context, fileURL string) error {
	path, err := c.pathFromURL(fileURL)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		sha, exists, err := c.GetFileInfo(ctx, path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !exists {
			log.Printf("✅ [GITHUB] %s already absent, nothing to delete", path)
			return nil
		}
		err = c.deleteContents(ctx, path, sha, fmt.Sprintf("Delete %s", path))
		if err == nil {
			log.Printf("✅ [GITHUB] Deleted %s", path)
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			log.Printf("✅ [GITHUB] %s vanished during delete, treating as success", path)
			return nil
		}
		if !isSHAConflict(err) {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		lastErr = err
		if attempt < maxWriteAttempts {
			delay := time.Duration(attempt) * c.retryUnit
			log.Printf("🔄 [GITHUB] SHA conflict deleting %s (attempt %d/%d), retrying in %v", path, attempt, maxWriteAttempts, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("delete cancelled: %w", ctx.Err())
			}
		}
	}
	return fmt.Errorf("delete %s: retries exhausted: %w", path, lastErr)
}

// GetFileInfo returns the blob SHA of path, or exists=false when the
// path has no file on the configured branch.
func (c *Client) GetFileInfo(ctx context.Context, path string) (sha string, exists bool, err error) {
	url := fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s", c.apiBaseURL, c.cfg.Repo, path, c.cfg.Branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fmt.Errorf("build stat request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("call github: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read github response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var file struct {
			SHA string `json:"sha"`
		}
		if err := json.Unmarshal(raw, &file); err != nil {
			return "", false, fmt.Errorf("unmarshal file info: %w", err)
		}
		return file.SHA, true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, &APIError{StatusCode: resp.StatusCode, Message: apiMessage(raw)}
	}
}

// DeleteFolderIfEmpty probes the avatar's folder after its last
// published image goes away. Git drops empty trees on its own, so this
// only reports what it finds; it never fails the caller.
func (c *Client) DeleteFolderIfEmpty(ctx context.Context, avatarName string) {
	folder := "avatars/" + sanitizeName(avatarName)
	url := fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s", c.apiBaseURL, c.cfg.Repo, folder, c.cfg.Branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("⚠️ [GITHUB] Folder cleanup skipped for %s: %v", folder, err)
		return
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("⚠️ [GITHUB] Folder cleanup skipped for %s: %v", folder, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Printf("✅ [GITHUB] Folder %s already gone", folder)
		return
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [GITHUB] Folder cleanup listing failed for %s (status %d)", folder, resp.StatusCode)
		return
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Printf("⚠️ [GITHUB] Folder cleanup listing unreadable for %s: %v", folder, err)
		return
	}
	if len(entries) == 0 {
		log.Printf("✅ [GITHUB] Folder %s is empty; git will drop it on the next commit", folder)
		return
	}
	log.Printf("ℹ️ [GITHUB] Folder %s still has %d file(s), leaving it alone", folder, len(entries))
}

// RawURL is the public read URL for a repository path.
func (c *Client) RawURL(path string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.rawBaseURL, c.cfg.Repo, c.cfg.Branch, path)
}

// pathFromURL inverts RawURL. URLs from other hosts or repos are not
// ours to delete.
func (c *Client) pathFromURL(fileURL string) (string, error) {
	prefix := fmt.Sprintf("%s/%s/%s/", c.rawBaseURL, c.cfg.Repo, c.cfg.Branch)
	if !strings.HasPrefix(fileURL, prefix) {
		return "", fmt.Errorf("url %q is not managed by this store", fileURL)
	}
	path := strings.TrimPrefix(fileURL, prefix)
	if path == "" {
		return "", fmt.Errorf("url %q has no file path", fileURL)
	}
	return path, nil
}

func (c *Client) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", sourceURL, resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image bytes: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("download %s: empty body", sourceURL)
	}
	if len(content) > maxImageBytes {
		return nil, fmt.Errorf("download %s: image exceeds %d bytes", sourceURL, maxImageBytes)
	}
	return content, nil
}

func (c *Client) putContents(ctx context.Context, path string, content []byte, sha, message string) error {
	body := map[string]interface{}{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  c.cfg.Branch,
	}
	if sha != "" {
		body["sha"] = sha
	}
	return c.writeContents(ctx, http.MethodPut, path, body)
}

func (c *Client) deleteContents(ctx context.Context, path, sha, message string) error {
	body := map[string]interface{}{
		"message": message,
		"sha":     sha,
		"branch":  c.cfg.Branch,
	}
	return c.writeContents(ctx, http.MethodDelete, path, body)
}

func (c *Client) writeContents(ctx context.Context, method, path string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal contents request: %w", err)
	}
	url := fmt.Sprintf("%s/repos/%s/contents/%s", c.apiBaseURL, c.cfg.Repo, path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build contents request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call github: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read github response: %w", err)
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(raw)}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
}

// buildKey lays files out as
// avatars/<avatar>/<timestamp>_<avatar>_<prompt-hash>_<random>.<ext>
// so a folder holds one avatar's images and names never collide.
func buildKey(avatarName, prompt, ext string) string {
	name := sanitizeName(avatarName)
	ts := time.Now().UTC().Format("20060102150405")
	hash := sha256.Sum256([]byte(prompt))
	random := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return fmt.Sprintf("avatars/%s/%s_%s_%s_%s.%s", name, ts, name, hex.EncodeToString(hash[:4]), random, normalizeExt(ext))
}

func sanitizeName(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "avatar"
	}
	return s
}

func normalizeExt(ext string) string {
	e := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	switch e {
	case "jpg", "jpeg", "png", "webp":
		return e
	default:
		return "webp"
	}
}

func apiMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "no response body"
	}
	return s
}
