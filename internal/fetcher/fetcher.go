package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"feed_scraper/internal/logger"
)

// ErrBlockedByRobots возвращается, когда robots.txt источника
// запрещает обращение к запрошенному пути.
var ErrBlockedByRobots = errors.New("blocked by robots.txt")

// Тело ответа читается не более чем на 5 МБ — страницы больше
// почти наверняка не статьи.
const maxBodySize = 5 << 20

const retryBaseDelay = 2 * time.Second

// StatusError — ответ с HTTP-статусом ≥ 400.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.Code)
}

// Client — HTTP-клиент для всех сетевых операций ядра: единый таймаут,
// per-origin rate limit, проверка robots.txt и ограниченные ретраи.
type Client struct {
	http       *http.Client
	limiter    *OriginLimiter
	userAgent  string
	maxRetries int

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.RobotsData
}

func NewClient(timeout, originInterval time.Duration, maxRetries int, userAgent string) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		limiter:    NewOriginLimiter(originInterval),
		userAgent:  userAgent,
		maxRetries: maxRetries,
		robots:     make(map[string]*robotstxt.RobotsData),
	}
}

// Origin возвращает scheme://host часть URL — домен для rate limit'а.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// Get выполняет GET с учётом rate limit'а и robots.txt.
// Сетевые ошибки и ответы 5xx ретраятся с удвоением задержки,
// не более maxRetries попыток.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	origin, err := Origin(rawURL)
	if err != nil {
		return nil, err
	}
	if !c.robotsAllowed(ctx, origin, rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrBlockedByRobots, rawURL)
	}

	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			logger.Log.WithField("url", rawURL).Debugf("Retrying fetch, attempt %d", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err := c.limiter.Wait(ctx, origin); err != nil {
			return nil, err
		}

		body, err := c.do(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Клиентские статусы не исчезнут от повторной попытки.
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

// robotsAllowed проверяет путь rawURL против robots.txt источника.
// Файл запрашивается один раз на origin; при любой ошибке загрузки
// доступ считается разрешённым.
func (c *Client) robotsAllowed(ctx context.Context, origin, rawURL string) bool {
	c.robotsMu.Lock()
	data, cached := c.robots[origin]
	c.robotsMu.Unlock()

	if !cached {
		data = c.fetchRobots(ctx, origin)
		c.robotsMu.Lock()
		c.robots[origin] = data
		c.robotsMu.Unlock()
	}
	if data == nil {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return data.TestAgent(u.Path, c.userAgent)
}

func (c *Client) fetchRobots(ctx context.Context, origin string) *robotstxt.RobotsData {
	if err := c.limiter.Wait(ctx, origin); err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return data
}
