package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AlverezYari/facecam/internal/logging"
	"github.com/AlverezYari/facecam/internal/recognition"
	"github.com/AlverezYari/facecam/internal/server"
)

// Client talks to a running facecam control port.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Base() string { return c.base }

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, res.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (map[string]int, error) {
	var st map[string]int
	if err := c.do(ctx, http.MethodGet, "/status", &st); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Client) Stats(ctx context.Context) (server.Stats, error) {
	var st server.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", &st); err != nil {
		return server.Stats{}, err
	}
	return st, nil
}

func (c *Client) Logs(ctx context.Context, n int) ([]logging.Entry, error) {
	var entries []logging.Entry
	if err := c.do(ctx, http.MethodGet, "/logs?n="+strconv.Itoa(n), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Gallery(ctx context.Context) ([]recognition.Identity, error) {
	var ids []recognition.Identity
	if err := c.do(ctx, http.MethodGet, "/gallery", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Set writes one control key, the same as the web page does.
func (c *Client) Set(ctx context.Context, key string, val int) error {
	q := url.Values{"var": {key}, "val": {strconv.Itoa(val)}}
	return c.do(ctx, http.MethodGet, "/control?"+q.Encode(), nil)
}

func (c *Client) Forget(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/gallery/"+strconv.Itoa(id), nil)
}
