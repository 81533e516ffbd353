package notify

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"servermon/internal/config"
)

var emailBody = template.Must(template.New("email").Parse(`<html>
<body>
<h2>{{if .Failed}}Endpoint check failed{{else}}Endpoint recovered{{end}}: {{.Endpoint}}</h2>
<table cellpadding="4">
<tr><td><b>Check</b></td><td>{{.CheckType}}</td></tr>
<tr><td><b>Status</b></td><td>{{.Status}}</td></tr>
{{if .PreviousStatus}}<tr><td><b>Previous status</b></td><td>{{.PreviousStatus}}</td></tr>{{end}}
{{if .Failed}}<tr><td><b>Consecutive failures</b></td><td>{{.ConsecutiveFailures}}</td></tr>{{end}}
{{if .ErrorMessage}}<tr><td><b>Error</b></td><td>{{.ErrorMessage}}</td></tr>{{end}}
{{if .ResponseTime}}<tr><td><b>Response time</b></td><td>{{printf "%.3fs" .ResponseTime}}</td></tr>{{end}}
<tr><td><b>Time</b></td><td>{{.Timestamp.Format "2006-01-02 15:04:05 MST"}}</td></tr>
</table>
</body>
</html>`))

// EmailNotifier delivers notifications over SMTP.
type EmailNotifier struct {
	settings *config.EmailSettings
}

func NewEmail(settings *config.EmailSettings) *EmailNotifier {
	return &EmailNotifier{settings: settings}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Policy() config.NotificationPolicy { return e.settings.Policy }

func (e *EmailNotifier) Send(ctx context.Context, c *Context) error {
	smtp := e.settings.SMTP
	opts := []mail.Option{
		mail.WithPort(smtp.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if smtp.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(smtp.Username),
			mail.WithPassword(smtp.Password))
	}
	switch smtp.ConnectionMethod {
	case config.ConnectionSSL:
		opts = append(opts, mail.WithSSL())
	case config.ConnectionPlain:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	client, err := mail.NewClient(smtp.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(smtp.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(e.settings.Recipients...); err != nil {
		return fmt.Errorf("recipients: %w", err)
	}
	msg.Subject(emailSubject(c))
	if err := msg.SetBodyHTMLTemplate(emailBody, c); err != nil {
		return fmt.Errorf("render body: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func emailSubject(c *Context) string {
	verb := "RECOVERED"
	if c.Failed() {
		verb = strings.ToUpper(string(c.Status))
	}
	return fmt.Sprintf("[servermon] %s: %s", verb, c.Endpoint)
}
