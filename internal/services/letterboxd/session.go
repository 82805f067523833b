package letterboxd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Session holds the authenticated Letterboxd session state. It is owned
// exclusively by the client; other components only reach it through Submit.
type Session struct {
	csrf          string
	establishedAt time.Time
	expired       bool
}

// ensureSession returns the held session or performs a fresh login when none
// exists or the held one is flagged expired. Idempotent.
func (c *Client) ensureSession(ctx context.Context) (*Session, error) {
	if c.session != nil && !c.session.expired {
		return c.session, nil
	}
	return c.login(ctx)
}

// login performs the multi-step form login: fetch the sign-in page, scrape
// the CSRF token, post credentials, confirm the JSON result
func (c *Client) login(ctx context.Context) (*Session, error) {
	c.logger.Info("Starting Letterboxd login")

	// Fresh jar so stale cookies from an expired session cannot leak in
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c.httpClient.Jar = jar
	c.session = nil

	csrf, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)
	form.Set("__csrf", csrf)
	form.Set("authenticationCode", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user/login.do", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	var loginResp struct {
		Result   string   `json:"result"`
		Messages []string `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON login response: %v", ErrAuthentication, err)
	}
	if loginResp.Result != "success" {
		return nil, fmt.Errorf("%w: %s", ErrAuthentication, strings.Join(loginResp.Messages, "; "))
	}

	c.session = &Session{
		csrf:          csrf,
		establishedAt: time.Now(),
	}
	c.logger.Info("Logged in to Letterboxd")
	return c.session, nil
}

// fetchCSRFToken loads the sign-in page and scrapes the __csrf input
func (c *Client) fetchCSRFToken(ctx context.Context) (string, error) {
	doc, err := c.getDocument(ctx, "/sign-in/")
	if err != nil {
		return "", err
	}

	csrf, ok := doc.Find("input[name=__csrf]").Attr("value")
	if !ok || csrf == "" {
		return "", fmt.Errorf("CSRF token not found on sign-in page")
	}
	return csrf, nil
}

// getDocument fetches a page and parses it. A page carrying the logged-out
// signature (sign-in form where none belongs) flags the session expired.
func (c *Client) getDocument(ctx context.Context, path string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("letterboxd returned status %d: %s", resp.StatusCode, string(body))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.baseURL+"/")
}

// loggedOut checks a parsed page for the logged-out signature
func loggedOut(doc *goquery.Document) bool {
	if doc.Find("body.logged-in, .nav-account").Length() > 0 {
		return false
	}
	return doc.Find("form[action*='login.do'], input[name=__csrf][form=signin]").Length() > 0 ||
		doc.Find("body.logged-out").Length() > 0
}
