package email

import (
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/khaledhikmat/aicam-go/service/config"
)

// sendTimeout bounds the whole SMTP conversation. A wedged server must not
// park the alert notifier; the webhook leg carries the same budget.
const sendTimeout = 10 * time.Second

type smtpService struct {
	CfgSvc  config.IService
	timeout time.Duration
}

func NewSMTP(cfgsvc config.IService) IService {
	return &smtpService{CfgSvc: cfgsvc, timeout: sendTimeout}
}

func (svc *smtpService) Send(to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("no recipient configured")
	}

	from := svc.CfgSvc.GetSMTPFrom()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := svc.CfgSvc.GetSMTPAddr()
	conn, err := net.DialTimeout("tcp", addr, svc.timeout)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	defer conn.Close()

	// One deadline covers the handshake and the conversation.
	if err := conn.SetDeadline(time.Now().Add(svc.timeout)); err != nil {
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp greeting from %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from %s: %w", from, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp finish message: %w", err)
	}
	return client.Quit()
}
