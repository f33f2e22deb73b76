// Package hosting rehosts assets and long-form articles on Telegraph.
package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config controls the Telegraph client.
type Config struct {
	// APIBase is the article API root, default https://api.telegra.ph.
	APIBase string
	// FileBase serves uploads, default https://telegra.ph.
	FileBase string
	AccessToken string
	AuthorName  string
	AuthorURL   string
	Timeout     time.Duration
}

// Telegraph talks to the Telegraph upload and page APIs.
type Telegraph struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Telegraph client.
func New(cfg Config, logger *zap.Logger) *Telegraph {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegra.ph"
	}
	if cfg.FileBase == "" {
		cfg.FileBase = "https://telegra.ph"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Telegraph{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// UploadAsset posts raw bytes to the file endpoint and returns the hosted URL.
func (t *Telegraph) UploadAsset(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "blob.jpg")
	if err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.FileBase+"/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload asset: unexpected status %d", resp.StatusCode)
	}

	var files []struct {
		Src string `json:"src"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return "", fmt.Errorf("upload asset: decode response: %w", err)
	}
	if len(files) == 0 || files[0].Src == "" {
		return "", fmt.Errorf("upload asset: empty response")
	}
	return t.cfg.FileBase + files[0].Src, nil
}

// node is a Telegraph DOM node.
type node struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []any             `json:"children,omitempty"`
}

// CreateArticle publishes an article holding one img element per hosted page,
// in the given order, with a trailing page-count line.
func (t *Telegraph) CreateArticle(ctx context.Context, title string, imageURLs []string, pageCount int) (string, error) {
	content := make([]any, 0, len(imageURLs)+1)
	for _, u := range imageURLs {
		content = append(content, node{Tag: "img", Attrs: map[string]string{"src": u}})
	}
	content = append(content, node{Tag: "p", Children: []any{fmt.Sprintf("%d pages", pageCount)}})

	contentJSON, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("create article: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"access_token": t.cfg.AccessToken,
		"title":        title,
		"author_name":  t.cfg.AuthorName,
		"author_url":   t.cfg.AuthorURL,
		"content":      string(contentJSON),
	})
	if err != nil {
		return "", fmt.Errorf("create article: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.APIBase+"/createPage", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create article: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create article: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var out struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("create article: decode response: %w", err)
	}
	if !out.OK {
		return "", fmt.Errorf("create article: api error: %s", out.Error)
	}

	t.logger.Debug("article created",
		zap.String("url", out.Result.URL),
		zap.Int("images", len(imageURLs)),
	)
	return out.Result.URL, nil
}

// Probe reports whether the article still resolves. A 404 means the article
// was taken down; transport failures are returned as errors so callers do not
// mistake an outage for a dead article.
func (t *Telegraph) Probe(ctx context.Context, articleURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return false, fmt.Errorf("probe article: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe article: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("probe article: unexpected status %d", resp.StatusCode)
	}
}
