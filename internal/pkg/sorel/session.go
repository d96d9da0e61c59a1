package sorel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Login opens a session unless one is already held.
func (c *Client) Login(ctx context.Context) error {
	if c.cookies != nil {
		return nil
	}

	res, err := c.request(ctx, c.loginURL(), nil)
	if err != nil {
		return err
	}

	body := bytes.Trim(bytes.TrimSpace(res.Body), "()")
	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if _, ok := payload["session_key"]; !ok {
		return ErrInvalidCredentials
	}

	c.cookies = res.Cookies
	if c.cookies == nil {
		c.cookies = []*http.Cookie{}
	}
	c.logger.Debug("logged in", zap.Int("cookies", len(c.cookies)))
	return nil
}

// fetch performs an authenticated GET. An HTML body means the session has
// expired: the session is dropped, renewed and the GET retried once.
func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	res, err := c.request(ctx, target, c.cookies)
	if err != nil {
		return nil, err
	}
	if !isHTML(res.Body) {
		return res.Body, nil
	}

	c.logger.Debug("session expired, logging in again", zap.String("url", target))
	c.cookies = nil
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	res, err = c.request(ctx, target, c.cookies)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (c *Client) request(ctx context.Context, target string, cookies []*http.Cookie) (*Response, error) {
	res, err := c.fetcher.Get(ctx, target, cookies)
	if err != nil {
		// url.Error carries the full URL, which includes the password on login.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, res.StatusCode)
	}
	return res, nil
}

func isHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}
