/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const DefaultEndpoint = "https://api.imgbb.com/1/upload"

// maxResponseBytes bounds how much of the host's reply is read.
const maxResponseBytes = 1 << 20

// Client uploads payment proofs to an imgbb-compatible image host and
// returns the hosted URL.
type Client struct {
	endpoint string
	apiKey   string
	http     http.Client
}

type uploadResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(cfg models.UploadConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("upload API key cannot be empty")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid upload endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	httpClient, err := createCustomHttpClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Client{endpoint: endpoint, apiKey: cfg.APIKey, http: httpClient}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// Upload sends file as the "image" form field. Any transport or host
// failure is reported as store.ErrUpstream.
func (c *Client) Upload(ctx context.Context, file *models.ProofFile) (string, error) {
	if file == nil || file.Body == nil {
		return "", fmt.Errorf("%w: proof file is required", store.ErrValidation)
	}

	name := filepath.Base(file.Name)
	if name == "." || name == "/" {
		name = "proof"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", name)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return "", fmt.Errorf("failed to read proof file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	target := c.endpoint + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: upload request failed: %w", store.ErrUpstream, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Debug("Failed to close upload response", zap.Error(err))
		}
	}()

	var parsed uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: unreadable upload response (status %d): %w", store.ErrUpstream, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !parsed.Success || parsed.Data.URL == "" {
		msg := parsed.Error.Message
		if msg == "" {
			msg = "image upload failed"
		}
		return "", fmt.Errorf("%w: %s (status %d)", store.ErrUpstream, msg, resp.StatusCode)
	}

	zap.L().Info("Proof uploaded",
		zap.String("file", name),
		zap.Duration("took", time.Since(start)))

	return parsed.Data.URL, nil
}

// Disabled stands in for the client when no image host is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, *models.ProofFile) (string, error) {
	return "", fmt.Errorf("%w: proof uploads are not configured", store.ErrUpstream)
}
