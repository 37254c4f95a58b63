package provider

import (
	"context"
	"fmt"
	"time"
)

const retryMaxAttempts = 5

var retryInitialDelay = 1 * time.Second

// ChatWithRetry calls the provider and retries throttling errors with a
// doubling delay. Any other error returns immediately; throttling past the
// attempt cap returns the last error.
func ChatWithRetry(ctx context.Context, p Provider, req ChatRequest) (ChatResponse, error) {
	delay := retryInitialDelay
	var lastErr error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsRateLimited(err) {
			return ChatResponse{}, err
		}
		lastErr = err
		if attempt == retryMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ChatResponse{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return ChatResponse{}, fmt.Errorf("rate limited after %d attempts: %w", retryMaxAttempts, lastErr)
}
