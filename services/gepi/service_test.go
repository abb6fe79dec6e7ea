package gepi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"gepi-backend/lib/scrapers/gepi/core"
	"gepi-backend/lib/scrapers/gepi/view"
	"gepi-backend/lib/testutil"
	"gepi-backend/services/gepi"
	"gepi-backend/services/gepi/store"

	"github.com/stretchr/testify/require"
)

const (
	portalUser     = "dupont.j"
	portalPassword = "hunter2"
)

const loginFailedPage = `<html><body>Échec de la connexion à Gepi</body></html>`

const loggedOutPage = `<html><head>
<link rel="stylesheet" href="style/logout.css"/>
</head><body>Identification</body></html>`

const homePage = `<html><body>
<div class="postit">
Rappel: réunion parents-profs jeudi.
<form action="accueil.php" method="post">
<input type="hidden" name="csrf_alea" value="f00d"/>
<input type="hidden" name="supprimer_message" value="42"/>
</form>
</div>
</body></html>`

const bareHomePage = `<html><body><h1>Accueil</h1></body></html>`

// fakePortal mimics the handful of portal behaviors the registry
// depends on: cookie-based sessions, the logout page served to
// unauthenticated requests and the login failure page.
type fakePortal struct {
	mu       sync.Mutex
	cookies  map[string]bool
	requests map[string]int
	// when set, issued cookies are never honored, so every
	// authenticated request looks expired
	alwaysExpired bool
	// when set, pages are served without the sticky-note widget
	noPostit bool
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		cookies:  map[string]bool{},
		requests: map[string]int{},
	}
}

func (p *fakePortal) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[path]
}

func (p *fakePortal) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.requests {
		n += c
	}
	return n
}

func (p *fakePortal) expireAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = map[string]bool{}
}

func (p *fakePortal) authed(r *http.Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alwaysExpired {
		return false
	}
	c, err := r.Cookie(core.CookieName)
	if err != nil {
		return false
	}
	return p.cookies[c.Value]
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests[r.URL.Path]++
	p.mu.Unlock()

	switch r.URL.Path {
	case "/login.php":
		err := r.ParseForm()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		user := r.PostForm.Get("login")
		password := r.PostForm.Get("no_anti_inject_password")
		if user != portalUser || password != portalPassword {
			fmt.Fprint(w, loginFailedPage)
			return
		}

		p.mu.Lock()
		value := fmt.Sprintf("sess-%d", len(p.cookies)+1)
		p.cookies[value] = true
		p.mu.Unlock()

		http.SetCookie(w, &http.Cookie{
			Name:  core.CookieName,
			Value: value,
			Path:  "/",
		})
		fmt.Fprint(w, homePage)

	case "/logout.php":
		p.expireAll()
		fmt.Fprint(w, loggedOutPage)

	default:
		if !p.authed(r) {
			fmt.Fprint(w, loggedOutPage)
			return
		}
		p.mu.Lock()
		noPostit := p.noPostit
		p.mu.Unlock()
		if noPostit {
			fmt.Fprint(w, bareHomePage)
			return
		}
		fmt.Fprint(w, homePage)
	}
}

func setupRegistry(t *testing.T) (*fakePortal, store.Store, *gepi.Service) {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name: "gepi-registry",
	})
	t.Cleanup(cleanup)

	portal := newFakePortal()
	server := httptest.NewServer(portal)
	t.Cleanup(server.Close)

	st := store.NewFile(filepath.Join(t.TempDir(), "sessions.json"))
	svc, err := gepi.NewService(context.Background(), st, gepi.Options{
		BaseUrl: server.URL,
	})
	require.NoError(t, err)

	return portal, st, svc
}

func TestLoginRejected(t *testing.T) {
	portal, st, svc := setupRegistry(t)
	ctx := context.Background()

	status, token, err := svc.Login(ctx, portalUser, "wrong")
	require.NoError(t, err)
	require.Equal(t, core.StatusLoginFailed, status)
	require.Empty(t, token)

	// no entry was registered, so no token can reach the portal
	before := portal.total()
	_, status, err = svc.Home(ctx, portalUser, "whatever")
	require.NoError(t, err)
	require.Equal(t, core.StatusInvalid, status)
	require.Equal(t, before, portal.total())

	records, err := st.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestTokenExactMatch(t *testing.T) {
	portal, _, svc := setupRegistry(t)
	ctx := context.Background()

	status, token, err := svc.Login(ctx, portalUser, portalPassword)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)
	require.Len(t, token, 64)

	postit, status, err := svc.Home(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)
	require.Equal(t, "Rappel: réunion parents-profs jeudi.", postit.Content)
	require.Equal(t, "f00d", postit.CsrfToken)

	// a wrong token, an empty token and an unknown user are all
	// rejected without touching the portal
	before := portal.total()
	for _, c := range []struct{ user, token string }{
		{portalUser, token[:32]},
		{portalUser, ""},
		{"nobody", token},
	} {
		_, status, err := svc.Home(ctx, c.user, c.token)
		require.NoError(t, err)
		require.Equal(t, core.StatusInvalid, status)
	}
	require.Equal(t, before, portal.total())
}

func TestRemovePostit(t *testing.T) {
	portal, _, svc := setupRegistry(t)
	ctx := context.Background()

	status, token, err := svc.Login(ctx, portalUser, portalPassword)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)

	status, err = svc.RemovePostit(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)

	// with no note on the page there is nothing to remove
	portal.mu.Lock()
	portal.noPostit = true
	portal.mu.Unlock()

	postit, status, err := svc.Home(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)
	require.Empty(t, postit.Content)

	status, err = svc.RemovePostit(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusInvalid, status)
}

func TestLocalRejectionsMakeNoRequest(t *testing.T) {
	portal, _, svc := setupRegistry(t)
	ctx := context.Background()

	status, token, err := svc.Login(ctx, portalUser, portalPassword)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)

	before := portal.total()

	_, status, err = svc.Mailbox(ctx, portalUser, token, view.Mailbox("q"))
	require.NoError(t, err)
	require.Equal(t, core.StatusInvalid, status)

	status, err = svc.TransferMail(ctx, portalUser, token, 7, view.MailboxA, view.MailboxZ)
	require.NoError(t, err)
	require.Equal(t, core.StatusInvalid, status)

	require.Equal(t, before, portal.total())
}

func TestSilentRelogin(t *testing.T) {
	portal, st, svc := setupRegistry(t)
	ctx := context.Background()

	status, token, err := svc.Login(ctx, portalUser, portalPassword)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)
	require.Equal(t, 1, portal.count("/login.php"))

	// the portal forgets the session, the next call detects the expiry,
	// re-logs in once and retries
	portal.expireAll()

	_, status, err = svc.Home(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)
	require.Equal(t, 2, portal.count("/login.php"))

	// the token and credential survive the silent re-login
	records, err := st.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, token, records[0].Token)
	require.Equal(t, portalUser, records[0].User)
	require.Equal(t, portalPassword, records[0].Password)
}

func TestSecondExpiryIsReported(t *testing.T) {
	portal, _, svc := setupRegistry(t)
	ctx := context.Background()

	status, token, err := svc.Login(ctx, portalUser, portalPassword)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)

	portal.mu.Lock()
	portal.alwaysExpired = true
	portal.mu.Unlock()

	logins := portal.count("/login.php")
	_, status, err = svc.Home(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusLoggedOut, status)
	// exactly one silent re-login attempt, not an endless loop
	require.Equal(t, logins+1, portal.count("/login.php"))
}

func TestLogoutKeepsCredential(t *testing.T) {
	portal, _, svc := setupRegistry(t)
	ctx := context.Background()

	status, token, err := svc.Login(ctx, portalUser, portalPassword)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)

	status, err = svc.Logout(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusLoggedOut, status)

	// same token, fresh portal session through the stored credential
	_, status, err = svc.Home(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)
	require.Equal(t, 2, portal.count("/login.php"))
}

func TestRestoredSession(t *testing.T) {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name: "gepi-registry-restore",
	})
	t.Cleanup(cleanup)

	portal := newFakePortal()
	server := httptest.NewServer(portal)
	t.Cleanup(server.Close)

	st := store.NewFile(filepath.Join(t.TempDir(), "sessions.json"))
	ctx := context.Background()

	first, err := gepi.NewService(ctx, st, gepi.Options{BaseUrl: server.URL})
	require.NoError(t, err)
	status, token, err := first.Login(ctx, portalUser, portalPassword)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)

	second, err := gepi.NewService(ctx, st, gepi.Options{BaseUrl: server.URL})
	require.NoError(t, err)

	// restored cookie is still honored, no extra login happens
	_, status, err = second.Home(ctx, portalUser, token)
	require.NoError(t, err)
	require.Equal(t, core.StatusOk, status)
	require.Equal(t, 1, portal.count("/login.php"))
}
