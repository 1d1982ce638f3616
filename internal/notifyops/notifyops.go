// Package notifyops implements the 4.H ops notifier: best-effort alerts to
// whoever operates the server when the scheduler hits Desync or cancels a
// subscription for InsufficientFunds. Grounded on the teacher's
// internal/notificator package (telegram.go, email.go), reshaped from
// per-wallet user notifications to a single ops destination.
package notifyops

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/go-telegram/bot"

	"github.com/reconnectedcc/kromer/pkg/logger"
)

const (
	emailMaxRetries   = 3
	emailRetryBackoff = 2 * time.Second
	emailTimeout      = 30 * time.Second
)

// TelegramConfig configures the optional Telegram channel. ChatID is the
// ops chat to post alerts to; an empty Token disables the channel exactly
// as NewTelegramNotificator handles a blank token in the teacher.
type TelegramConfig struct {
	Token  string
	ChatID string
}

// SMTPConfig configures the optional email channel. An empty Host disables
// the channel.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Sender   string
	To       string
}

// Notifier fans an alert out to whichever channels are configured. Every
// send is best-effort: failures are logged, never returned, matching §5's
// "failures to send are logged but never propagated" policy already
// specified for the scheduler signal.
type Notifier struct {
	log *logger.Logger

	tgBot    *bot.Bot
	tgChatID string

	smtp SMTPConfig
}

func New(log *logger.Logger, tg TelegramConfig, mail SMTPConfig) *Notifier {
	n := &Notifier{log: log, smtp: mail}

	if tg.Token == "" {
		log.Warn("telegram bot token not provided, telegram ops alerts disabled")
	} else {
		b, err := bot.New(tg.Token)
		if err != nil {
			log.Error("failed to initialize telegram bot, telegram ops alerts disabled", "error", err)
		} else {
			n.tgBot = b
			n.tgChatID = tg.ChatID
			go b.Start(context.Background())
		}
	}

	if mail.Host == "" {
		log.Warn("smtp host not provided, email ops alerts disabled")
	}

	return n
}

// Alert sends message on every configured channel. Intended callers are the
// scheduler on Desync and on InsufficientFunds-triggered cancellation.
func (n *Notifier) Alert(message string) {
	if n.tgBot != nil {
		n.sendTelegram(message)
	}
	if n.smtp.Host != "" {
		n.sendEmail(message)
	}
}

func (n *Notifier) sendTelegram(message string) {
	_, err := n.tgBot.SendMessage(context.Background(), &bot.SendMessageParams{
		ChatID: n.tgChatID,
		Text:   message,
	})
	if err != nil {
		n.log.Error("failed to send telegram ops alert", "error", err)
	}
}

func (n *Notifier) sendEmail(message string) {
	addr := net.JoinHostPort(n.smtp.Host, strconv.Itoa(n.smtp.Port))
	auth := smtp.PlainAuth("", n.smtp.User, n.smtp.Password, n.smtp.Host)
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.smtp.Sender, n.smtp.To, "Kromer ops alert", message)

	var lastErr error
	for attempt := 0; attempt < emailMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(emailRetryBackoff * time.Duration(attempt))
			n.log.Debug("retrying ops alert email", "attempt", attempt+1)
		}
		if err := n.sendMailWithTimeout(addr, auth, n.smtp.Sender, []string{n.smtp.To}, []byte(body)); err == nil {
			n.log.Debug("ops alert email sent", "attempt", attempt+1)
			return
		} else {
			lastErr = err
			n.log.Warn("failed to send ops alert email", "attempt", attempt+1, "error", err)
		}
	}
	n.log.Error("failed to send ops alert email after retries", "attempts", emailMaxRetries, "error", lastErr)
}

func (n *Notifier) sendMailWithTimeout(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := &net.Dialer{Timeout: emailTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to smtp server: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(emailTimeout)); err != nil {
		return fmt.Errorf("set connection deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, n.smtp.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: n.smtp.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start tls: %w", err)
		}
	}

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err := writer.Write(msg); err != nil {
		writer.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}

	return client.Quit()
}
