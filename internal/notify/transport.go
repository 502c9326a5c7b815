package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"tour-booking/pkg/utils"

	"go.uber.org/zap"
)

// Transport delivers one rendered notification. Implementations must be
// safe for concurrent use by the dispatcher workers.
type Transport interface {
	Send(ctx context.Context, to, templateID string, vars map[string]string) error
}

// ==================== LOG ====================

type logTransport struct {
	log *zap.Logger
}

func NewLogTransport(log *zap.Logger) Transport {
	return &logTransport{log: log.With(zap.String("transport", "log"))}
}

func (t *logTransport) Send(ctx context.Context, to, templateID string, vars map[string]string) error {
	subject := templateID
	if tpl, ok := templateByID(templateID); ok {
		subject = Render(tpl.Subject, vars)
	}
	t.log.Info("Notification sent",
		zap.String("to", to),
		zap.String("template_id", templateID),
		zap.String("subject", subject),
		zap.String("order_id", vars["order_id"]),
	)
	return nil
}

// ==================== SMTP ====================

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type smtpTransport struct {
	config   utils.EmailConfig
	sendMail sendMailFunc
	log      *zap.Logger
}

func NewSMTPTransport(config utils.EmailConfig, log *zap.Logger) Transport {
	return &smtpTransport{
		config:   config,
		sendMail: smtp.SendMail,
		log:      log.With(zap.String("transport", "smtp")),
	}
}

func (t *smtpTransport) Send(ctx context.Context, to, templateID string, vars map[string]string) error {
	if to == "" {
		return fmt.Errorf("send %s: empty recipient", templateID)
	}
	tpl, ok := templateByID(templateID)
	if !ok {
		return fmt.Errorf("send %s: unknown template", templateID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString("From: " + t.config.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + Render(tpl.Subject, vars) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(Render(tpl.Body, vars))

	var auth smtp.Auth
	if t.config.User != "" {
		auth = smtp.PlainAuth("", t.config.User, t.config.Password, t.config.Host)
	}

	addr := t.config.Host + ":" + strconv.Itoa(t.config.Port)
	if err := t.sendMail(addr, auth, t.config.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send %s to %s: %w", templateID, to, err)
	}
	return nil
}

// ==================== AMQP ====================

// JSONPublisher is the publishing side of pkg/mq.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// OutboundMessage is what a downstream mailer consumes.
type OutboundMessage struct {
	To         string            `json:"to"`
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables"`
}

type amqpTransport struct {
	publisher JSONPublisher
}

func NewAMQPTransport(publisher JSONPublisher) Transport {
	return &amqpTransport{publisher: publisher}
}

func (t *amqpTransport) Send(ctx context.Context, to, templateID string, vars map[string]string) error {
	msg := OutboundMessage{To: to, TemplateID: templateID, Variables: vars}
	if err := t.publisher.PublishJSON(ctx, "notification."+templateID, msg); err != nil {
		return fmt.Errorf("publish %s: %w", templateID, err)
	}
	return nil
}

func templateByID(id string) (Template, bool) {
	for _, tpl := range templates {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return Template{}, false
}
