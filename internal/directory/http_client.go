package directory

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

	"streampulse/internal/models"
)

// ErrChannelNotFound marks references the directory does not know.
var ErrChannelNotFound = errors.New("channel not found")

// HTTPClient resolves channels via the directory's REST endpoints.
type HTTPClient struct {
	config Config
}

type batchPreviewRequest struct {
	ChannelIDs []string `json:"channelIds"`
}

type batchPreviewResponse struct {
	Channels []models.ChannelPreview `json:"channels"`
}

func (c *HTTPClient) ResolveByReference(ctx context.Context, reference string) (models.ChannelPreview, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return models.ChannelPreview{}, fmt.Errorf("channel reference is required")
	}

	endpoint := fmt.Sprintf("%s/v1/channels/by-reference/%s",
		strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(reference))

	var preview models.ChannelPreview
	if err := c.get(ctx, endpoint, &preview); err != nil {
		return models.ChannelPreview{}, err
	}
	if preview.ID == "" {
		return models.ChannelPreview{}, fmt.Errorf("resolve %s: %w", reference, ErrChannelNotFound)
	}
	return preview, nil
}

func (c *HTTPClient) BatchResolve(ctx context.Context, ids []string) ([]models.ChannelPreview, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/v1/channels/previews", strings.TrimRight(c.config.BaseURL, "/"))
	payload := batchPreviewRequest{ChannelIDs: ids}

	var response batchPreviewResponse
	if err := c.post(ctx, endpoint, payload, &response); err != nil {
		return nil, err
	}
	return response.Channels, nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint string, dest interface{}) error {
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, dest)
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, dest)
}

func (c *HTTPClient) doWithRetry(ctx context.Context, build func() (*http.Request, error), dest interface{}) error {
	attempts := c.config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && c.config.RetryInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryInterval):
			}
		}

		req, err := build()
		if err != nil {
			return err
		}
		if c.config.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.Token)
		}

		resp, err := c.config.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return ErrChannelNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
			// Client errors other than 404 will not improve on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return lastErr
			}
			continue
		}

		if dest == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil
		}
		err = json.NewDecoder(resp.Body).Decode(dest)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

var _ Client = (*HTTPClient)(nil)
