// Package upstream предоставляет клиент центральной системы (бэк-офиса) Olea Controls.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/olea-platform/internal/model"
)

// ErrNotConfigured возвращается, если адрес центральной системы не задан.
var ErrNotConfigured = errors.New("upstream client not configured")

// RateLimitError сообщает, что центральная система попросила повторить запрос позже.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("upstream rate limited, retry after %s", e.RetryAfter)
}

// RetryDelay сообщает, через сколько можно повторить выгрузку.
func (e *RateLimitError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// Client инкапсулирует HTTP-взаимодействие с центральной системой.
// Выгрузка расходов повторяется при сетевых ошибках и ответах 5xx; 429 возвращается вызывающему.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *retryablehttp.Client
}

// NewClient создаёт клиент центральной системы по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	retry := retryablehttp.NewClient()
	retry.Logger = nil
	retry.RetryMax = 2
	retry.RetryWaitMin = 50 * time.Millisecond
	retry.RetryWaitMax = 500 * time.Millisecond
	retry.HTTPClient.Timeout = 5 * time.Second
	retry.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &Client{
		baseURL:    base,
		httpClient: retry.HTTPClient,
		retry:      retry,
	}
}

// Ping проверяет доступность центральной системы.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ping", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// PushExpenses передаёт пакет расходов в центральную систему.
func (c *Client) PushExpenses(ctx context.Context, expenses []model.Expense) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(expenses)
	if err != nil {
		return fmt.Errorf("encode expenses: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/expenses/batch", body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.retry.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
