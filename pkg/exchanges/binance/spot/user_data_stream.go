package spot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
)

// Listen keys scope a user data stream to the account behind the API
// key. Binance expires them after 60 minutes unless kept alive.

// CreateListenKey opens a user data stream and returns its listen key.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	body, err := c.listenKeyRequest(ctx, http.MethodPost, "", "create listen key")
	if err != nil {
		return "", err
	}
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.ListenKey, nil
}

// KeepAliveListenKey extends a listen key's validity window.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	_, err := c.listenKeyRequest(ctx, http.MethodPut, listenKey, "keepalive listen key")
	return err
}

// CloseListenKey ends the user data stream behind the key.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	_, err := c.listenKeyRequest(ctx, http.MethodDelete, listenKey, "close listen key")
	return err
}

// listenKeyRequest hits /api/v3/userDataStream, which authenticates by
// API key header alone with no request signature. Failures carry the
// transient/rejection split so the stream supervisor knows whether to
// reconnect.
func (c *Client) listenKeyRequest(ctx context.Context, method, listenKey, op string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("binance: API key required")
	}

	endpoint := c.baseURL + "/api/v3/userDataStream"
	if listenKey != "" {
		params := url.Values{}
		params.Set("listenKey", listenKey)
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.do(req, op)
}
