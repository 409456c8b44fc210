package api

import (
	"context"
	"errors"
	"net/http"
)

// TokenSource exchanges the application credentials for a short-lived
// access token.
type TokenSource struct {
	client    *Client
	appID     string
	secret    string
	onRequest func(err error)
}

type accessTokenRequest struct {
	AppID  string `json:"appId"`
	Secret string `json:"secret"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// Token performs one POST /v1/accessToken call and returns the token.
//
// Any failure, including a response without a token, is returned as a
// [*TransportError]. Token does not retry.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	token, err := ts.request(ctx)
	if ts.onRequest != nil {
		ts.onRequest(err)
	}
	return token, err
}

func (ts *TokenSource) request(ctx context.Context) (string, error) {
	url := ts.client.baseURL + "/v1/accessToken"

	var resp accessTokenResponse
	err := ts.client.doJSON(ctx, "access token", http.MethodPost, url, nil,
		accessTokenRequest{AppID: ts.appID, Secret: ts.secret}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &TransportError{Op: "access token", URL: url, StatusCode: http.StatusOK, Err: errors.New("response has no accessToken")}
	}
	return resp.AccessToken, nil
}

// token returns the bearer token for the next report request. Without token
// reuse every call asks the server for a fresh one.
func (c *Client) token(ctx context.Context) (string, error) {
	if !c.reuseToken {
		return c.tokens.Token(ctx)
	}

	c.mu.Lock()
	cached := c.cachedToken
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cachedToken = token
	c.mu.Unlock()
	return token, nil
}

// invalidateToken drops a cached token the server has rejected.
func (c *Client) invalidateToken(rejected string) {
	c.mu.Lock()
	if c.cachedToken == rejected {
		c.cachedToken = ""
	}
	c.mu.Unlock()
}
