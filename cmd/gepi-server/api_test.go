package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"gepi-backend/lib/testutil"
	"gepi-backend/services/gepi"
	"gepi-backend/services/gepi/store"

	"github.com/stretchr/testify/require"
)

func setupApi(t *testing.T, portalUrl string) *httptest.Server {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "gepi-api"})
	t.Cleanup(cleanup)

	st := store.NewFile(filepath.Join(t.TempDir(), "sessions.json"))
	svc, err := gepi.NewService(context.Background(), st, gepi.Options{
		BaseUrl: portalUrl,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	RegisterApi(mux, svc)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postForm(t *testing.T, server *httptest.Server, path string, form url.Values) (int, string) {
	t.Helper()
	res, err := http.PostForm(server.URL+path, form)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func decodeStatus(t *testing.T, body string) string {
	t.Helper()
	var res struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &res), "body: %s", body)
	return res.Status
}

// a dead portal must still produce a structured `{status}` reply, never
// a bare http error
func TestApiPortalUnreachable(t *testing.T) {
	server := setupApi(t, "http://127.0.0.1:1")

	code, body := postForm(t, server, "/api/login", url.Values{
		"user":     {"dupont.j"},
		"password": {"hunter2"},
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "invalid", decodeStatus(t, body))
}

func TestApiUnknownPath(t *testing.T) {
	server := setupApi(t, "http://127.0.0.1:1")

	code, body := postForm(t, server, "/api/does_not_exist", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "invalid", decodeStatus(t, body))
}

func TestApiBadForm(t *testing.T) {
	server := setupApi(t, "http://127.0.0.1:1")

	res, err := http.Post(
		server.URL+"/api/home",
		"application/x-www-form-urlencoded",
		strings.NewReader("%zz=broken"),
	)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&decoded))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "invalid", decoded.Status)
}

const emptyMailboxPage = `<html><body>
<table><tr><th>Date</th><th>Auteur</th><th>Sujet</th></tr></table>
</body></html>`

// an ok reply for an empty folder carries an empty array, the field
// never disappears
func TestApiEmptyMailbox(t *testing.T) {
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login.php" {
			http.SetCookie(w, &http.Cookie{Name: "GEPI", Value: "sess", Path: "/"})
			fmt.Fprint(w, "<html>Bienvenue</html>")
			return
		}
		fmt.Fprint(w, emptyMailboxPage)
	}))
	defer portal.Close()

	server := setupApi(t, portal.URL)

	_, body := postForm(t, server, "/api/login", url.Values{
		"user":     {"dupont.j"},
		"password": {"hunter2"},
	})
	var login struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &login))
	require.Equal(t, "ok", login.Status)

	_, body = postForm(t, server, "/api/mailbox", url.Values{
		"user":    {"dupont.j"},
		"token":   {login.Token},
		"mailbox": {"a"},
	})
	require.Equal(t, "ok", decodeStatus(t, body))
	require.Contains(t, body, `"mails":[]`)
}
