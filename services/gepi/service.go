package gepi

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"gepi-backend/lib/scrapers/gepi/core"
	"gepi-backend/lib/scrapers/gepi/view"
	"gepi-backend/services/gepi/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/gepi")

type Options struct {
	// portal root, e.g. "https://gepi.example.fr"
	BaseUrl string
	// breach alerting, optional
	Smtp       SmtpConfig
	AlertEmail string
}

type entry struct {
	// serializes all portal traffic for one user
	mu      sync.Mutex
	session *core.Session
	client  view.Client
}

// Service is the session registry: it owns every live portal session,
// checks the capability token on each call and persists a full snapshot
// after anything that could have changed session state.
type Service struct {
	store   store.Store
	options Options

	// guards the sessions map itself, not the sessions
	mu       sync.Mutex
	sessions map[string]*entry
	// serializes snapshot writes
	saveMu sync.Mutex
}

// NewService restores all persisted sessions from the store. Restored
// sessions are not probed here, expiry is detected lazily on first use.
func NewService(ctx context.Context, st store.Store, options Options) (*Service, error) {
	ctx, span := tracer.Start(ctx, "NewService")
	defer span.End()

	records, err := st.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load session snapshot")
		return nil, err
	}

	s := &Service{
		store:    st,
		options:  options,
		sessions: map[string]*entry{},
	}
	for _, r := range records {
		session, err := core.NewSession(core.SessionOptions{
			BaseUrl: options.BaseUrl,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to rebuild session")
			return nil, err
		}
		session.Username = r.User
		session.Password = r.Password
		session.Token = r.Token
		if r.Cookie != "" {
			session.SetCookie(r.Cookie)
		}
		s.sessions[r.User] = &entry{
			session: session,
			client:  view.NewClient(session),
		}
	}

	slog.InfoContext(ctx, "restored gepi sessions", "count", len(records))
	return s, nil
}

func (s *Service) get(user string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[user]
}

// persist writes the full snapshot. Failures are logged, not returned:
// the in-memory registry stays authoritative and the next successful
// save catches up.
func (s *Service) persist(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "persist")
	defer span.End()

	s.mu.Lock()
	records := make([]store.Record, 0, len(s.sessions))
	for user, e := range s.sessions {
		records = append(records, store.Record{
			User:     user,
			Password: e.session.Password,
			Token:    e.session.Token,
			Cookie:   e.session.Cookie(),
		})
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].User < records[j].User
	})

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	err := s.store.Save(ctx, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save session snapshot")
		slog.ErrorContext(ctx, "failed to save gepi session snapshot", "err", err)
	}
}

// Login opens a portal session for the given credential. Only an ok
// classification registers the session and returns a capability token,
// everything else leaves the registry untouched.
func (s *Service) Login(ctx context.Context, user, password string) (core.Status, string, error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	session, err := core.NewSession(core.SessionOptions{
		BaseUrl: s.options.BaseUrl,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create session")
		return "", "", err
	}

	status, err := session.Login(ctx, user, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login request failed")
		return "", "", err
	}
	if status == core.StatusBreach {
		s.notifyBreach(ctx, user)
	}
	if status != core.StatusOk {
		span.SetStatus(codes.Error, string(status))
		return status, "", nil
	}

	s.mu.Lock()
	s.sessions[user] = &entry{
		session: session,
		client:  view.NewClient(session),
	}
	s.mu.Unlock()

	s.persist(ctx)
	return core.StatusOk, session.Token, nil
}

// withSession runs one portal operation under the user's lock. An
// unknown user and a wrong token are deliberately indistinguishable.
func (s *Service) withSession(ctx context.Context, user, token string, op func(ctx context.Context, client view.Client) (core.Status, error)) (core.Status, error) {
	e := s.get(user)
	if e == nil || token == "" || e.session.Token != token {
		return core.StatusInvalid, nil
	}

	e.mu.Lock()
	status, err := op(ctx, e.client)
	e.mu.Unlock()

	if status == core.StatusBreach {
		s.notifyBreach(ctx, user)
	}
	// the silent re-login inside Session may have rotated the cookie
	// even on calls that look read-only from here
	s.persist(ctx)
	return status, err
}

func (s *Service) Home(ctx context.Context, user, token string) (view.Postit, core.Status, error) {
	ctx, span := tracer.Start(ctx, "Home")
	defer span.End()

	var postit view.Postit
	status, err := s.withSession(ctx, user, token, func(ctx context.Context, client view.Client) (core.Status, error) {
		var status core.Status
		var err error
		postit, status, err = client.Home(ctx)
		return status, err
	})
	return postit, status, err
}

func (s *Service) RemovePostit(ctx context.Context, user, token string) (core.Status, error) {
	ctx, span := tracer.Start(ctx, "RemovePostit")
	defer span.End()

	return s.withSession(ctx, user, token, func(ctx context.Context, client view.Client) (core.Status, error) {
		return client.RemovePostit(ctx)
	})
}

func (s *Service) Notebook(ctx context.Context, user, token string) ([]view.NotebookDay, core.Status, error) {
	ctx, span := tracer.Start(ctx, "Notebook")
	defer span.End()

	var days []view.NotebookDay
	status, err := s.withSession(ctx, user, token, func(ctx context.Context, client view.Client) (core.Status, error) {
		var status core.Status
		var err error
		days, status, err = client.Notebook(ctx)
		return status, err
	})
	return days, status, err
}

func (s *Service) Mailbox(ctx context.Context, user, token string, mb view.Mailbox) ([]view.Mail, core.Status, error) {
	ctx, span := tracer.Start(ctx, "Mailbox")
	defer span.End()

	var mails []view.Mail
	status, err := s.withSession(ctx, user, token, func(ctx context.Context, client view.Client) (core.Status, error) {
		var status core.Status
		var err error
		mails, status, err = client.Mailbox(ctx, mb)
		return status, err
	})
	return mails, status, err
}

func (s *Service) ReadMail(ctx context.Context, user, token string, mailId int) (string, core.Status, error) {
	ctx, span := tracer.Start(ctx, "ReadMail")
	defer span.End()

	var content string
	status, err := s.withSession(ctx, user, token, func(ctx context.Context, client view.Client) (core.Status, error) {
		var status core.Status
		var err error
		content, status, err = client.ReadMail(ctx, mailId)
		return status, err
	})
	return content, status, err
}

func (s *Service) TransferMail(ctx context.Context, user, token string, transferId int, from, to view.Mailbox) (core.Status, error) {
	ctx, span := tracer.Start(ctx, "TransferMail")
	defer span.End()

	return s.withSession(ctx, user, token, func(ctx context.Context, client view.Client) (core.Status, error) {
		return client.TransferMail(ctx, transferId, from, to)
	})
}

// Logout closes the portal session but keeps the registry entry: the
// stored credential still allows a silent re-login on later calls with
// the same token.
func (s *Service) Logout(ctx context.Context, user, token string) (core.Status, error) {
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()

	return s.withSession(ctx, user, token, func(ctx context.Context, client view.Client) (core.Status, error) {
		return client.Logout(ctx)
	})
}
