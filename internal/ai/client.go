// Package ai holds the Gemini-backed content generator and reply classifier.
// Both degrade gracefully: wiring substitutes template content and the
// fail-safe classification when no API key is configured.
package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}
