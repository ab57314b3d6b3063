package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// SMTPTransport delivers messages over SMTP with STARTTLS when offered.
// Every Send and Verify builds its own client, so concurrent callers never
// share an SMTP conversation.
type SMTPTransport struct {
	host string
	opts []mail.Option
}

func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	t := &SMTPTransport{host: cfg.Host, opts: opts}
	if _, err := t.newClient(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SMTPTransport) newClient() (*mail.Client, error) {
	c, err := mail.NewClient(t.host, t.opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (string, error) {
	m, err := buildMsg(msg)
	if err != nil {
		return "", err
	}
	c, err := t.newClient()
	if err != nil {
		return "", err
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID(m), nil
}

// Verify dials the server, authenticating if configured, and hangs up.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	c, err := t.newClient()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp verify: %w", err)
	}
	return c.Close()
}

func buildMsg(msg *Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("from address %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("to address %q: %w", msg.To, err)
	}
	if msg.Cc != "" {
		if err := m.Cc(splitAddrs(msg.Cc)...); err != nil {
			return nil, fmt.Errorf("cc address %q: %w", msg.Cc, err)
		}
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

func messageID(m *mail.Msg) string {
	if ids := m.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func splitAddrs(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
