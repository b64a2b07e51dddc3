package taskbank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// maxFeedBytes caps how much of a feed is read.
const maxFeedBytes = 8 << 20

// Config configures a Loader.
type Config struct {
	// MaxRetries is the number of extra attempts for retryable HTTP
	// failures. Defaults to 3 if zero.
	MaxRetries int

	// BaseRetryDelay is the first backoff delay. Defaults to 1 second.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff. Defaults to 8 seconds.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a client for tests. Defaults to a client
	// with a 20s timeout.
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header.
	UserAgent string
}

// HTTPError is a non-200 response from a feed URL.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("taskbank: GET %s: status %d", e.URL, e.StatusCode)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Loader reads task feeds from files or http(s) URLs.
type Loader struct {
	config Config
	http   *http.Client
}

// NewLoader creates a Loader, filling in defaults.
func NewLoader(cfg Config) *Loader {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 8 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Loader{config: cfg, http: client}
}

// Load reads and normalizes the feed at source, a file path or an http(s)
// URL. The format comes from the file extension or Content-Type and is
// sniffed when neither is conclusive.
func (l *Loader) Load(ctx context.Context, source string) ([]tasks.TaskRecord, Report, error) {
	if isURL(source) {
		return l.loadURL(ctx, source)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, Report{}, fmt.Errorf("taskbank: open %s: %w", source, err)
	}
	defer f.Close()
	return Parse(io.LimitReader(f, maxFeedBytes), formatFromExt(source))
}

// Load reads a feed with a default Loader.
func Load(ctx context.Context, source string) ([]tasks.TaskRecord, Report, error) {
	return NewLoader(Config{}).Load(ctx, source)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func formatFromExt(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	}
	return FormatAuto
}

func formatFromContentType(ct string) Format {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return FormatAuto
	}
	switch {
	case mt == "text/csv":
		return FormatCSV
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return FormatJSON
	}
	return FormatAuto
}

func (l *Loader) loadURL(ctx context.Context, url string) ([]tasks.TaskRecord, Report, error) {
	var lastErr error
	for attempt := 0; attempt <= l.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(l.retryDelay(attempt)):
			case <-ctx.Done():
				return nil, Report{}, ctx.Err()
			}
		}

		body, format, err := l.fetch(ctx, url)
		if err != nil {
			lastErr = err
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.IsRetryable() {
				continue
			}
			if ctx.Err() != nil {
				return nil, Report{}, ctx.Err()
			}
			return nil, Report{}, err
		}
		return Parse(strings.NewReader(body), format)
	}
	return nil, Report{}, fmt.Errorf("taskbank: max retries exceeded: %w", lastErr)
}

func (l *Loader) fetch(ctx context.Context, url string) (string, Format, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", FormatAuto, fmt.Errorf("taskbank: create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, application/json;q=0.9, */*;q=0.5")
	if l.config.UserAgent != "" {
		req.Header.Set("User-Agent", l.config.UserAgent)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return "", FormatAuto, fmt.Errorf("taskbank: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", FormatAuto, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", FormatAuto, fmt.Errorf("taskbank: read response: %w", err)
	}

	format := formatFromContentType(resp.Header.Get("Content-Type"))
	if format == FormatAuto {
		format = formatFromExt(req.URL.Path)
	}
	return string(data), format, nil
}

func (l *Loader) retryDelay(attempt int) time.Duration {
	delay := l.config.BaseRetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	return min(delay, l.config.MaxRetryDelay)
}
