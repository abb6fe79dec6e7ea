package view

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"gepi-backend/lib/scrapers/gepi/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/gepi/view")

const (
	homePath     = "/accueil.php"
	notebookPath = "/cahier_texte/consultation.php"
	mailboxPath  = "/mod_alerte/form_alerte_bis.php"
	readMailPath = "/mod_alerte/lect_alerte.php"
)

// Client implements the portal operations on top of one Session. It
// holds no state of its own, every call confirms the session responded
// ok before parsing anything.
type Client struct {
	Session *core.Session
}

func NewClient(session *core.Session) Client {
	return Client{Session: session}
}

func document(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewBuffer(body))
}

// Home fetches the home page and extracts the sticky-note widget.
func (c Client) Home(ctx context.Context) (Postit, core.Status, error) {
	ctx, span := tracer.Start(ctx, "client:Home")
	defer span.End()

	status, body, err := c.Session.Get(ctx, homePath, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch home page")
		return Postit{}, status, err
	}
	if status != core.StatusOk {
		return Postit{}, status, nil
	}

	doc, err := document(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse home page html")
		return Postit{}, status, err
	}
	postit, err := ParsePostit(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed home page")
		return Postit{}, status, err
	}
	return postit, core.StatusOk, nil
}

// RemovePostit dismisses the sticky note using the hidden form fields
// scraped off the home page. With no note present there is nothing to
// remove and the call is rejected locally.
func (c Client) RemovePostit(ctx context.Context) (core.Status, error) {
	ctx, span := tracer.Start(ctx, "client:RemovePostit")
	defer span.End()

	postit, status, err := c.Home(ctx)
	if err != nil || status != core.StatusOk {
		return status, err
	}
	if postit.Content == "" {
		return core.StatusInvalid, nil
	}

	status, _, err = c.Session.Post(ctx, homePath, map[string]string{
		"csrf_alea":         postit.CsrfToken,
		"supprimer_message": postit.RemovalID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit postit removal")
	}
	return status, err
}

// Notebook fetches and parses the homework listing grouped by day.
func (c Client) Notebook(ctx context.Context) ([]NotebookDay, core.Status, error) {
	ctx, span := tracer.Start(ctx, "client:Notebook")
	defer span.End()

	status, body, err := c.Session.Get(ctx, notebookPath, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch notebook page")
		return nil, status, err
	}
	if status != core.StatusOk {
		return nil, status, nil
	}

	doc, err := document(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse notebook html")
		return nil, status, err
	}
	days, err := ParseNotebook(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed notebook page")
		return nil, status, err
	}
	return days, core.StatusOk, nil
}

// Mailbox lists one of the three mail folders. An unknown folder id is
// rejected before any network call.
func (c Client) Mailbox(ctx context.Context, mb Mailbox) ([]Mail, core.Status, error) {
	ctx, span := tracer.Start(ctx, "client:Mailbox")
	defer span.End()

	if !mb.Valid() {
		return nil, core.StatusInvalid, nil
	}

	status, body, err := c.Session.Get(ctx, mailboxPath, map[string]string{
		"mode": "afficher_boite_" + string(mb),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch mailbox page")
		return nil, status, err
	}
	if status != core.StatusOk {
		return nil, status, nil
	}

	doc, err := document(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse mailbox html")
		return nil, status, err
	}
	mails, err := ParseMailbox(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed mailbox page")
		return nil, status, err
	}
	return mails, core.StatusOk, nil
}

// ReadMail fetches one mail and extracts its readable body.
func (c Client) ReadMail(ctx context.Context, mailId int) (string, core.Status, error) {
	ctx, span := tracer.Start(ctx, "client:ReadMail")
	defer span.End()

	status, body, err := c.Session.Get(ctx, readMailPath, map[string]string{
		"rg": strconv.Itoa(mailId),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch mail page")
		return "", status, err
	}
	if status != core.StatusOk {
		return "", status, nil
	}

	doc, err := document(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse mail html")
		return "", status, err
	}
	content, err := ParseMailBody(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed mail page")
		return "", status, err
	}
	return content, core.StatusOk, nil
}

// TransferMail moves a mail between two folders. Illegal folder pairs
// are rejected before any network call, the portal enforces the actual
// move.
func (c Client) TransferMail(ctx context.Context, transferId int, from, to Mailbox) (core.Status, error) {
	ctx, span := tracer.Start(ctx, "client:TransferMail")
	defer span.End()

	if !ValidTransfer(from, to) {
		return core.StatusInvalid, nil
	}

	status, _, err := c.Session.Get(ctx, mailboxPath, map[string]string{
		"action":    fmt.Sprintf("de_%s_vers_%s", from, to),
		"id_alerte": strconv.Itoa(transferId),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request mail transfer")
	}
	return status, err
}

// Logout delegates to the session.
func (c Client) Logout(ctx context.Context) (core.Status, error) {
	return c.Session.Logout(ctx)
}
