package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"gepi-backend/lib/restyutil"
	"gepi-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/gepi/core")

// Status is the classification of a single portal response. Every
// response collapses to exactly one of these.
type Status string

const (
	StatusOk          Status = "ok"
	StatusLoggedOut   Status = "logout"
	StatusLoginFailed Status = "failed"
	StatusNotFound    Status = "not-found"
	StatusBreach      Status = "breach"
	// StatusInvalid is never produced by classification, it marks
	// requests rejected locally before any network call.
	StatusInvalid Status = "invalid"
)

// body markers the portal serves, checked in this priority order
const (
	logoutMarker      = "logout.css"
	loginFailedMarker = "Échec de la connexion à Gepi"
	breachMarker      = "TENTATIVE D'INTRUSION"
)

// CookieName is the portal's session cookie.
const CookieName = "GEPI"

const (
	LoginPath  = "/login.php"
	LogoutPath = "/logout.php"
)

var restyInstrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	restyInstrumentOutput = output
}

// Session holds one authenticated connection to the portal: its cookie
// jar, the credential it was opened with and the capability token minted
// at login. The registry serializes access per user, Session itself does
// no locking.
type Session struct {
	BaseUrl *url.URL
	Http    *resty.Client

	Username string
	Password string
	Token    string
}

type SessionOptions struct {
	BaseUrl string
}

func NewSession(opts SessionOptions) (*Session, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/gepi/http")
	restyutil.InstrumentClient(client, nil, restyInstrumentOutput)

	s := &Session{
		BaseUrl: baseUrl,
		Http:    client,
	}
	return s, nil
}

// Classify collapses a portal response to a Status by checking body
// markers in priority order.
func Classify(statusCode int, body string) Status {
	switch {
	case strings.Contains(body, logoutMarker):
		return StatusLoggedOut
	case strings.Contains(body, loginFailedMarker):
		return StatusLoginFailed
	case statusCode == http.StatusNotFound:
		return StatusNotFound
	case strings.Contains(body, breachMarker):
		return StatusBreach
	default:
		return StatusOk
	}
}

func (s *Session) classifyResponse(ctx context.Context, res *resty.Response) Status {
	status := Classify(res.StatusCode(), res.String())
	if status == StatusBreach {
		// portal-side anomaly, normal traffic never triggers this
		slog.WarnContext(
			ctx, "portal reported an intrusion attempt",
			"user", s.Username,
			"url", res.Request.URL,
		)
	}
	return status
}

func newToken() (string, error) {
	nonce := make([]byte, 32)
	_, err := rand.Read(nonce)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(nonce), nil
}

// Login authenticates against the portal with the given credential. On
// success it stores the credential and mints a fresh capability token,
// on any other classification the session is left untouched.
func (s *Session) Login(ctx context.Context, user, password string) (Status, error) {
	return s.login(ctx, user, password, true)
}

func (s *Session) login(ctx context.Context, user, password string, generateToken bool) (Status, error) {
	ctx, span := tracer.Start(ctx, "session:Login")
	defer span.End()

	res, err := s.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"login":                   user,
			"no_anti_inject_password": password,
			"submit":                  "Valider",
		}).
		Post(LoginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return "", err
	}

	status := s.classifyResponse(ctx, res)
	if status != StatusOk {
		span.SetStatus(codes.Error, string(status))
		return status, nil
	}

	// the silent-retry path reuses the credential already stored, only
	// an explicit login may replace it (or mint a token)
	if generateToken {
		s.Username = user
		s.Password = password
		token, err := newToken()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to generate capability token")
			return "", err
		}
		s.Token = token
	}
	return StatusOk, nil
}

// Logout tears down the portal session. A "logout" classification is the
// success case here, the cookie state is cleared but the credential is
// kept so a later silent re-login can still succeed.
func (s *Session) Logout(ctx context.Context) (Status, error) {
	ctx, span := tracer.Start(ctx, "session:Logout")
	defer span.End()

	res, err := s.Http.R().
		SetContext(ctx).
		Get(LogoutPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make logout request")
		return "", err
	}

	status := s.classifyResponse(ctx, res)
	if status == StatusLoggedOut {
		s.resetCookies()
	}
	return status, nil
}

// Get performs an authenticated GET. On a detected expiry it silently
// re-logs in with the stored credential (keeping the token) and retries
// the request exactly once.
func (s *Session) Get(ctx context.Context, path string, params map[string]string) (Status, []byte, error) {
	ctx, span := tracer.Start(ctx, "session:Get")
	defer span.End()

	return s.do(ctx, func() (*resty.Response, error) {
		return s.Http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(path)
	})
}

// Post performs an authenticated form POST with the same single-retry
// behavior as Get.
func (s *Session) Post(ctx context.Context, path string, data map[string]string) (Status, []byte, error) {
	ctx, span := tracer.Start(ctx, "session:Post")
	defer span.End()

	return s.do(ctx, func() (*resty.Response, error) {
		return s.Http.R().
			SetContext(ctx).
			SetFormData(data).
			Post(path)
	})
}

func (s *Session) do(ctx context.Context, send func() (*resty.Response, error)) (Status, []byte, error) {
	var status Status
	var body []byte

	// bounded: at most one silent re-login, a second consecutive
	// expiry is returned as-is
	for attempt := 0; attempt < 2; attempt++ {
		res, err := send()
		if err != nil {
			return "", nil, err
		}
		status = s.classifyResponse(ctx, res)
		body = res.Body()

		if status != StatusLoggedOut || attempt > 0 || s.Username == "" {
			break
		}

		slog.DebugContext(ctx, "session expired, retrying with stored credential", "user", s.Username)
		_, err = s.login(ctx, s.Username, s.Password, false)
		if err != nil {
			return "", nil, err
		}
	}

	return status, body, nil
}

// Cookie returns the current value of the portal session cookie, empty
// when no session cookie is held.
func (s *Session) Cookie() string {
	for _, c := range s.Http.GetClient().Jar.Cookies(s.BaseUrl) {
		if c.Name == CookieName {
			return c.Value
		}
	}
	return ""
}

// SetCookie installs a previously saved portal cookie, reconstructing an
// authenticated session that will detect its own expiry lazily on next use.
func (s *Session) SetCookie(value string) {
	s.Http.GetClient().Jar.SetCookies(s.BaseUrl, []*http.Cookie{{
		Name:  CookieName,
		Value: value,
		Path:  "/",
	}})
}

func (s *Session) resetCookies() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		// cookiejar.New never returns an error with nil options
		panic(err)
	}
	s.Http.SetCookieJar(jar)
}
