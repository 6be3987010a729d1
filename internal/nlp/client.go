// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package nlp wraps the NLP microservice's fixed HTTP contract: text
// embedding for position similarity and NSFW classification for uploaded
// images. The service is a black box; this package only shapes requests
// and decodes responses.
package nlp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/GovThePPL/candid/internal/config"
)

// Embedding is a dense vector representation of a text.
type Embedding []float64

// ModerationResult is the NSFW classification verdict for an image.
type ModerationResult struct {
	NSFW       bool    `json:"nsfw"`
	Confidence float64 `json:"confidence"`
}

// Client talks to the NLP microservice. Embedding calls use the text
// timeout; image classification runs a heavier model and gets its own
// longer timeout.
type Client struct {
	baseURL     string
	textClient  *http.Client
	imageClient *http.Client
}

// NewClient creates an NLP service client.
func NewClient(cfg *config.NLPConfig) *Client {
	textTimeout := cfg.TextTimeout
	if textTimeout <= 0 {
		textTimeout = 5 * time.Second
	}
	imageTimeout := cfg.ImageTimeout
	if imageTimeout <= 0 {
		imageTimeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		textClient:  &http.Client{Timeout: textTimeout},
		imageClient: &http.Client{Timeout: imageTimeout},
	}
}

// EmbedText returns the embedding vector for a text.
func (c *Client) EmbedText(ctx context.Context, text string) (Embedding, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.textClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request failed with status %d", resp.StatusCode)
	}

	var result struct {
		Embedding Embedding `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	return result.Embedding, nil
}

// ClassifyImage runs NSFW classification on raw image bytes.
func (c *Client) ClassifyImage(ctx context.Context, image io.Reader, contentType string) (*ModerationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/moderate/image", image)
	if err != nil {
		return nil, fmt.Errorf("create moderation request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.imageClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation request failed with status %d", resp.StatusCode)
	}

	var result ModerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode moderation response: %w", err)
	}
	return &result, nil
}
