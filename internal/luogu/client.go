// Package luogu implements the web-login handshake against the Luogu site:
// token bootstrap, captcha download and credential submit.
package luogu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	loginPath   = "/auth/login"
	captchaPath = "/api/verify/captcha"
	submitPath  = "/api/auth/userPassLogin"

	clientIDCookie = "__client_id"
)

var (
	// ErrNoClientID means the landing page set no __client_id cookie.
	ErrNoClientID = errors.New("luogu: no __client_id cookie on login page")
	// ErrNoCSRFToken means the landing page carries no csrf-token meta tag.
	ErrNoCSRFToken = errors.New("luogu: no csrf-token meta tag on login page")
)

// Client talks to the Luogu endpoints. Cookie handling is manual: the
// client id is extracted once and replayed explicitly on every later call,
// so a single Client is safe to share across chats.
type Client struct {
	cli       *http.Client
	baseURL   string
	userAgent string
}

// NewClient returns a Client for the given site base URL.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		cli:       &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
	}
}

func (c *Client) loginURL() string { return c.baseURL + loginPath }

// FetchTokens GETs the login landing page once and extracts both the
// anonymous client id cookie and the CSRF token embedded in the HTML.
// Both must come from the same response; a second GET would rotate them.
func (c *Client) FetchTokens(ctx context.Context) (CaptchaBootstrap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.loginURL(), nil)
	if err != nil {
		return CaptchaBootstrap{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.cli.Do(req)
	if err != nil {
		return CaptchaBootstrap{}, fmt.Errorf("fetch login page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CaptchaBootstrap{}, fmt.Errorf("login page: unexpected status %s", resp.Status)
	}

	var clientID string
	for _, ck := range resp.Cookies() {
		if ck.Name == clientIDCookie {
			clientID = ck.Value
			break
		}
	}
	if clientID == "" {
		return CaptchaBootstrap{}, ErrNoClientID
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CaptchaBootstrap{}, fmt.Errorf("read login page: %w", err)
	}
	csrf := extractCSRFToken(body)
	if csrf == "" {
		return CaptchaBootstrap{}, ErrNoCSRFToken
	}

	return CaptchaBootstrap{ClientID: clientID, CSRFToken: csrf}, nil
}

// extractCSRFToken finds <meta name="csrf-token" content="..."> in the page.
func extractCSRFToken(page []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if tok.Data != "meta" {
				continue
			}
			var name, content string
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if name == "csrf-token" && content != "" {
				return content
			}
		}
	}
}

// FetchCaptcha downloads the captcha image for the given client id and
// returns the raw JPEG bytes. The image is kept in memory only.
func (c *Client) FetchCaptcha(ctx context.Context, clientID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+captchaPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.AddCookie(&http.Cookie{Name: clientIDCookie, Value: clientID})

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch captcha: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("captcha: unexpected status %s", resp.Status)
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read captcha: %w", err)
	}
	return img, nil
}

// SubmitLogin POSTs the credentials and decodes the polymorphic response.
// A non-nil error is a transport or decode problem; a rejected login comes
// back as LoginResult.Failure.
func (c *Client) SubmitLogin(ctx context.Context, form LoginForm) (*LoginResult, error) {
	payload, err := json.Marshal(loginRequest{
		Username: form.Username,
		Password: form.Password,
		Captcha:  form.Captcha,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", c.loginURL())
	req.Header.Set("x-csrf-token", form.CSRFToken)
	req.AddCookie(&http.Cookie{Name: clientIDCookie, Value: form.ClientID})

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit login: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read login response: %w", err)
	}
	return decodeLoginResponse(body)
}

// decodeLoginResponse tries the success shape first, then the failure
// shape. DisallowUnknownFields keeps the two shapes from being mistaken
// for each other, and each shape must also carry one of its identifying
// fields, so a degenerate body like {} matches neither.
func decodeLoginResponse(body []byte) (*LoginResult, error) {
	var ok LoginSuccess
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ok); err == nil && (ok.Username != "" || ok.SyncToken != "") {
		return &LoginResult{Success: &ok}, nil
	}

	var fail LoginFailure
	dec = json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fail); err == nil && (fail.Status != 0 || fail.ErrorMessage != "") {
		return &LoginResult{Failure: &fail}, nil
	}

	return nil, fmt.Errorf("login response matches neither shape: %q", truncate(body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
