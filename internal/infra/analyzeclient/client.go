package analyzeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

const (
	analyzePath    = "/api/analyze-xray"
	defaultBaseURL = "http://localhost:8080"
	maxErrorBody   = 4 << 10
)

// CodeRemote marks a non-2xx answer from the analysis server.
const CodeRemote = "remote_error"

// Client submits X-rays to the analysis endpoint as multipart form data.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends a bearer token with every submission.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads the image with the age and gender fields and decodes the result.
func (c *Client) Submit(ctx context.Context, sub diagnosis.Submission) (diagnosis.Result, error) {
	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		return diagnosis.Result{}, fmt.Errorf("encode submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, body)
	if err != nil {
		return diagnosis.Result{}, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return diagnosis.Result{}, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return diagnosis.Result{}, decodeError(resp)
	}
	var result diagnosis.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return diagnosis.Result{}, fmt.Errorf("decode analyze response: %w", err)
	}
	return result, nil
}

func encodeSubmission(sub diagnosis.Submission) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := sub.Image.Filename
	if filename == "" {
		filename = "xray"
	}
	mimeType := sub.Image.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(sub.Image.Data)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(sub.Image.Data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("age", strconv.Itoa(sub.Age)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("gender", string(sub.Gender)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env errorEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Error.Message != "" {
		code := env.Error.Code
		if code == "" {
			code = CodeRemote
		}
		return apperrors.Wrap(code, env.Error.Message, fmt.Errorf("status %d", resp.StatusCode))
	}
	return apperrors.Wrap(CodeRemote, fmt.Sprintf("analyze request error: status=%d", resp.StatusCode), fmt.Errorf("body=%s", strings.TrimSpace(string(payload))))
}
