package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ImageRouteClient calls the image-generation route: one synchronous POST
// guarded by a shared secret, returning a single result URL.
type ImageRouteClient struct {
	httpc *http.Client
	url   string
	token string
}

func NewImageRouteClient(url, token string) *ImageRouteClient {
	return &ImageRouteClient{
		httpc: &http.Client{Timeout: 2 * time.Minute},
		url:   url,
		token: token,
	}
}

func (c *ImageRouteClient) Generate(ctx context.Context, modelID string, params map[string]string) (string, error) {
	body := make(map[string]string, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["model"] = modelID
	body["token"] = c.token

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("API request failed: %s", strings.TrimSpace(string(errText)))
	}

	var result struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ImageURL, nil
}
