package gepi

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
}

// notifyBreach mails the operator when the portal flags a request as an
// intrusion attempt. Best effort: delivery failures are logged and the
// originating call proceeds with its "breach" status either way.
func (s *Service) notifyBreach(ctx context.Context, user string) {
	if s.options.AlertEmail == "" || s.options.Smtp.Server == "" {
		return
	}

	ctx, span := tracer.Start(ctx, "notifyBreach")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Gepi Backend <%s>", s.options.Smtp.EmailAddress)
	mail.To = []string{s.options.AlertEmail}
	mail.Subject = "Gepi intrusion attempt reported"

	body := fmt.Sprintf(`The portal flagged a request as an intrusion attempt.

user: %s

This usually means the portal's anti-injection filter matched something
in a submitted form. Check the request dumps for this user.`, user)
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", s.options.Smtp.Server, s.options.Smtp.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", s.options.Smtp.EmailAddress, s.options.Smtp.Password, s.options.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send breach alert")
		slog.ErrorContext(ctx, "failed to send breach alert", "user", user, "err", err)
	}
}
