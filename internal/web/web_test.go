package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/local/pdfstamp/internal/geometry"
	"github.com/local/pdfstamp/internal/store"
)

type sessions int

func (s sessions) Len() int { return int(s) }

func noRedirect(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func TestDashboardRequiresCredentials(t *testing.T) {
	ts := httptest.NewServer(New(Options{}).Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/dashboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDashboardRedirectsWithoutCookie(t *testing.T) {
	ts := httptest.NewServer(New(Options{Username: "u", Password: "p"}).Routes())
	defer ts.Close()

	client := &http.Client{CheckRedirect: noRedirect}
	resp, err := client.Get(ts.URL + "/dashboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/web/login", resp.Header.Get("Location"))
}

func TestLoginAndDashboard(t *testing.T) {
	h := store.NewMemoryHistory(10)
	require.NoError(t, h.Record(context.Background(), store.MergeRecord{
		ID:        "m1",
		SessionID: "s1",
		Template:  "template.pdf",
		Overlay:   "codes.pdf",
		Pages:     3,
		Placement: geometry.DocRect{X: 192, Y: 240, W: 72, H: 72},
		Output:    "output/s1_output.pdf",
		CreatedAt: time.Now().Add(-time.Minute),
	}))
	ts := httptest.NewServer(New(Options{History: h, Sessions: sessions(2), Title: "PDF QR Merger", Username: "u", Password: "p"}).Routes())
	defer ts.Close()
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.PostForm(ts.URL+"/login", url.Values{"username": {"u"}, "password": {"wrong"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Contains(t, resp.Header.Get("Location"), "invalid+credentials")

	resp, err = client.PostForm(ts.URL+"/login", url.Values{"username": {"u"}, "password": {"p"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "/web/dashboard", resp.Header.Get("Location"))
	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/dashboard", nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err = client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)
	require.True(t, strings.Contains(page, "PDF QR Merger"))
	require.Contains(t, page, "codes.pdf")
	require.Contains(t, page, "(192,240 72x72)")
	require.Contains(t, page, "Active sessions: 2")
}

func TestForgedCookieIsRejected(t *testing.T) {
	ts := httptest.NewServer(New(Options{Username: "u", Password: "p"}).Routes())
	defer ts.Close()
	client := &http.Client{CheckRedirect: noRedirect}

	for _, value := range []string{"1", "true", "00000000-0000-0000-0000-000000000000"} {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/dashboard", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: value})
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, "cookie %q", value)
		require.Equal(t, "/web/login", resp.Header.Get("Location"))
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	w := New(Options{Username: "u", Password: "p"})
	ts := httptest.NewServer(w.Routes())
	defer ts.Close()
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.PostForm(ts.URL+"/login", url.Values{"username": {"u"}, "password": {"p"}})
	require.NoError(t, err)
	resp.Body.Close()
	var token *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == CookieName {
			token = c
		}
	}
	require.NotNil(t, token)
	require.NotEqual(t, "1", token.Value)
	require.True(t, token.HttpOnly)

	authed := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	authed.AddCookie(token)
	require.True(t, w.Authorized(authed))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/logout", nil)
	require.NoError(t, err)
	req.AddCookie(token)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.False(t, w.Authorized(authed))
}

func TestAuthorizedNeedsCredentials(t *testing.T) {
	w := New(Options{})
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "anything"})
	require.False(t, w.Enabled())
	require.False(t, w.Authorized(req))
}
