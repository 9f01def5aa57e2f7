package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"parley/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MailSettings struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	IMAPHost     string
	IMAPPort     int
	IMAPUser     string
	IMAPPassword string
	FromAddress  string
	FromName     string
}

// MailTransport sends over SMTP and reads unseen replies over IMAP.
type MailTransport struct {
	settings MailSettings
	dedup    Deduper
	logger   *zap.Logger

	sendMail func(addr string, a sasl.Client, from string, to []string, r io.Reader) error
	now      func() time.Time
}

func NewMailTransport(settings MailSettings, dedup Deduper, logger *zap.Logger) *MailTransport {
	return &MailTransport{
		settings: settings,
		dedup:    dedup,
		logger:   logger.Named("mail"),
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

func (t *MailTransport) Send(ctx context.Context, msg models.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := ComposeMessage(t.settings.FromName, t.settings.FromAddress, msg, t.now())
	if err != nil {
		return fmt.Errorf("compose message to %s: %w", msg.To, err)
	}

	var auth sasl.Client
	if t.settings.SMTPUser != "" {
		auth = sasl.NewPlainClient("", t.settings.SMTPUser, t.settings.SMTPPassword)
	}
	addr := net.JoinHostPort(t.settings.SMTPHost, strconv.Itoa(t.settings.SMTPPort))
	if err := t.sendMail(addr, auth, t.settings.FromAddress, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	t.logger.Info("Mail sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// ComposeMessage renders msg as multipart/alternative mail with a plain
// text part and an HTML rendering of the same text.
func ComposeMessage(fromName, fromAddress string, msg models.OutboundMessage, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: fromName, Address: fromAddress}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	if msg.ReplyHint != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: msg.ReplyHint}})
	}
	h.SetSubject(msg.Subject)
	h.SetMessageID(uuid.NewString() + "@" + domainOf(fromAddress))

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.Body},
		{"text/html", plainToHTML(msg.Body)},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

// FetchNewMessages reads every unseen message in INBOX, marks them seen and
// returns the ones that are neither from this scheduler nor already routed.
func (t *MailTransport) FetchNewMessages(ctx context.Context) ([]models.InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(t.settings.IMAPHost, strconv.Itoa(t.settings.IMAPPort))
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	c.Timeout = 30 * time.Second
	defer c.Logout()

	if err := c.Login(t.settings.IMAPUser, t.settings.IMAPPassword); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("imap select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	fetched := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, fetched)
	}()

	var out []models.InboundMessage
	for m := range fetched {
		body := m.GetBody(section)
		if body == nil {
			continue
		}
		parsed, err := ParseMessage(body)
		if err != nil {
			t.logger.Warn("Skipping unparsable message", zap.Uint32("uid", m.Uid), zap.Error(err))
			continue
		}
		if parsed.ID == "" {
			if m.Envelope != nil && m.Envelope.MessageId != "" {
				parsed.ID = m.Envelope.MessageId
			} else {
				parsed.ID = fmt.Sprintf("uid:%d", m.Uid)
			}
		}
		if strings.EqualFold(parsed.Sender, t.settings.FromAddress) {
			continue
		}
		if t.dedup != nil {
			fresh, err := t.dedup.FirstSeen(ctx, parsed.ID)
			if err != nil {
				t.logger.Warn("Dedup check failed, routing anyway", zap.String("messageId", parsed.ID), zap.Error(err))
			} else if !fresh {
				t.logger.Debug("Skipping already routed message", zap.String("messageId", parsed.ID))
				continue
			}
		}
		out = append(out, *parsed)
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("imap fetch: %w", err)
	}

	flags := []interface{}{imap.SeenFlag}
	if err := c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		t.logger.Warn("Could not mark messages seen", zap.Error(err))
	}

	t.logger.Debug("Fetched inbound mail", zap.Int("unseen", len(uids)), zap.Int("routable", len(out)))
	return out, nil
}

// ParseMessage extracts sender, subject and the full text of a mail,
// including quoted text, since the correlation line usually sits in the
// quoted original. HTML is used only when there is no plain part.
func ParseMessage(r io.Reader) (*models.InboundMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("read mail: %w", err)
	}

	msg := &models.InboundMessage{ReceivedAt: time.Now()}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].Address
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if id, err := mr.Header.MessageID(); err == nil {
		msg.ID = id
	}
	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = date
	}

	var plain, html []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mail part: %w", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue // attachment
		}
		ct, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("read mail body: %w", err)
		}
		switch ct {
		case "text/plain", "":
			plain = append(plain, string(b))
		case "text/html":
			html = append(html, stripHTML(string(b)))
		}
	}

	if len(plain) > 0 {
		msg.Body = strings.Join(plain, "\n")
	} else {
		msg.Body = strings.Join(html, "\n")
	}
	if msg.Sender == "" {
		return nil, fmt.Errorf("mail has no sender")
	}
	return msg, nil
}
