package tilda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mtbar/concerts/pkg/models"
)

const statusFound = "FOUND"

// ErrNotConfigured is returned when no API keys are set
var ErrNotConfigured = errors.New("tilda is not configured")

// Config holds the API credentials and endpoints
type Config struct {
	BaseURL     string
	PublicKey   string
	SecretKey   string
	ProjectID   string
	PageBaseURL string
	Timeout     time.Duration
}

// Client talks to the Tilda page API
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Tilda API client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.WithGroup("tilda"),
	}
}

type apiResponse struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	UploadURL string          `json:"uploadurl"`
	Result    json.RawMessage `json:"result"`
}

// pageID reads result.id, which the API sends either as a number or a string
func (r *apiResponse) pageID() string {
	var result struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(r.Result, &result); err != nil {
		return ""
	}
	return result.ID.String()
}

func (c *Client) configured() bool {
	return c.cfg.PublicKey != "" && c.cfg.SecretKey != "" && c.cfg.ProjectID != ""
}

func (c *Client) credentials() url.Values {
	return url.Values{
		"publickey": {c.cfg.PublicKey},
		"secretkey": {c.cfg.SecretKey},
		"projectid": {c.cfg.ProjectID},
	}
}

// UploadImage stores an image file and returns its public URL
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte) (string, error) {
	if !c.configured() {
		return "", ErrNotConfigured
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range c.credentials() {
		if err := w.WriteField(k, v[0]); err != nil {
			return "", fmt.Errorf("failed to write form field: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close form: %w", err)
	}

	resp, err := c.call(ctx, "uploadfile", w.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	if resp.UploadURL == "" {
		return "", fmt.Errorf("tilda uploadfile: empty upload url")
	}

	c.logger.InfoContext(ctx, "Image uploaded", slog.String("url", resp.UploadURL))
	return resp.UploadURL, nil
}

// CreatePage creates an empty page and returns its id
func (c *Client) CreatePage(ctx context.Context, title string) (string, error) {
	form := c.credentials()
	form.Set("title", title)
	form.Set("descr", "Концерт: "+title)
	form.Set("alias", Alias(title))

	resp, err := c.postForm(ctx, "createpage", form)
	if err != nil {
		return "", err
	}
	pageID := resp.pageID()
	if pageID == "" {
		return "", fmt.Errorf("tilda createpage: empty page id")
	}
	return pageID, nil
}

// UpdatePage replaces the page HTML
func (c *Client) UpdatePage(ctx context.Context, pageID, html string) error {
	form := c.credentials()
	form.Set("pageid", pageID)
	form.Set("html", html)

	_, err := c.postForm(ctx, "updatepage", form)
	return err
}

// PublishPage makes the page public
func (c *Client) PublishPage(ctx context.Context, pageID string) error {
	form := c.credentials()
	form.Set("pageid", pageID)

	_, err := c.postForm(ctx, "publishpage", form)
	return err
}

// CreateAndPublish creates, fills and publishes a page in one go
func (c *Client) CreateAndPublish(ctx context.Context, title, html string) (*models.Page, error) {
	pageID, err := c.CreatePage(ctx, title)
	if err != nil {
		return nil, err
	}
	if err := c.UpdatePage(ctx, pageID, html); err != nil {
		return nil, err
	}
	if err := c.PublishPage(ctx, pageID); err != nil {
		return nil, err
	}

	page := &models.Page{ID: pageID, URL: c.cfg.PageBaseURL + pageID}
	c.logger.InfoContext(ctx, "Page published", slog.String("page_id", page.ID), slog.String("url", page.URL))
	return page, nil
}

func (c *Client) postForm(ctx context.Context, method string, form url.Values) (*apiResponse, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}
	return c.call(ctx, method, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/"+method, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build tilda %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tilda %s: %w", method, err)
	}
	defer func() { _ = res.Body.Close() }()

	var out apiResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tilda %s: failed to decode response (http %d): %w", method, res.StatusCode, err)
	}

	if out.Status != statusFound {
		c.logger.ErrorContext(ctx, "Tilda call failed",
			slog.String("method", method),
			slog.String("status", out.Status),
			slog.String("message", out.Message),
		)
		msg := out.Message
		if msg == "" {
			msg = out.Status
		}
		return nil, fmt.Errorf("tilda %s: %s", method, msg)
	}

	return &out, nil
}

var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

const aliasMaxLength = 50

// Alias builds a URL-safe page alias: transliterated, lowercase latin letters and digits only
func Alias(title string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(title) {
		if t, ok := translit[r]; ok {
			sb.WriteString(t)
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}

	alias := sb.String()
	if len(alias) > aliasMaxLength {
		alias = alias[:aliasMaxLength]
	}
	return alias
}
