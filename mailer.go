package latexeditor

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/unmatched78/latex-editor/stacktrace"
	"golang.org/x/time/rate"
)

var (
	headerNameReplacer  = strings.NewReplacer(":", "", "\r\n", "")
	headerValueReplacer = strings.NewReplacer("\r\n", "")
)

// MailerConfig holds the parameters needed to construct a Mailer. It is read
// from smtp.json in the config directory.
type MailerConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     string `json:"port"`

	// MailFrom is the sender address of error reports.
	MailFrom string `json:"mailFrom"`

	// LimitInterval is the interval for replenishing one token back to the
	// rate limiter bucket.
	LimitInterval time.Duration `json:"-"`

	// LimitBurst is the maximum number of tokens the rate limiter bucket can
	// hold.
	LimitBurst int `json:"-"`

	Logger *slog.Logger `json:"-"`
}

// Mailer sends error reports over SMTP. Queue mail by writing to its C
// channel. An SMTP connection is kept open for up to idleTimeout after each
// mail so that bursts of errors reuse it.
type Mailer struct {
	Username string
	Password string
	Host     string
	Port     string

	// Limiter is consulted before every mail so that a storm of errors does
	// not turn into a storm of mail.
	Limiter *rate.Limiter

	// C is the mail channel.
	C chan Mail

	Logger *slog.Logger

	baseCtx       context.Context
	baseCtxCancel func()
	stopped       chan struct{}
}

// Mail is an email to be sent.
type Mail struct {
	MailFrom string
	RcptTo   string

	// Headers are header name/value pairs, e.g.
	//
	//	[]string{"Subject", "Hello", "Content-Type", "text/plain; charset=utf-8"}
	Headers []string

	Body io.Reader
}

const idleTimeout = 100 * time.Second

// NewMailer pings the SMTP server with the given credentials and starts the
// background job that sends queued mail. Call Close to stop it.
func NewMailer(config MailerConfig) (*Mailer, error) {
	if config.LimitInterval == 0 {
		config.LimitInterval = 3 * time.Minute
	}
	if config.LimitBurst == 0 {
		config.LimitBurst = 20
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	baseCtx, baseCtxCancel := context.WithCancel(context.Background())
	mailer := &Mailer{
		Username:      config.Username,
		Password:      config.Password,
		Host:          config.Host,
		Port:          config.Port,
		Limiter:       rate.NewLimiter(rate.Every(config.LimitInterval), config.LimitBurst),
		C:             make(chan Mail, config.LimitBurst),
		Logger:        config.Logger,
		baseCtx:       baseCtx,
		baseCtxCancel: baseCtxCancel,
		stopped:       make(chan struct{}),
	}
	client, err := mailer.NewClient()
	if err != nil {
		baseCtxCancel()
		return nil, err
	}
	err = client.Quit()
	if err != nil {
		baseCtxCancel()
		return nil, stacktrace.New(err)
	}
	go mailer.start()
	return mailer, nil
}

// NewClient returns an authenticated SMTP client. Port 465 uses implicit TLS
// and port 587 uses STARTTLS.
func (mailer *Mailer) NewClient() (*smtp.Client, error) {
	var client *smtp.Client
	if mailer.Port == "465" {
		conn, err := tls.Dial("tcp", mailer.Host+":"+mailer.Port, &tls.Config{
			ServerName: mailer.Host,
		})
		if err != nil {
			return nil, stacktrace.New(err)
		}
		client, err = smtp.NewClient(conn, mailer.Host)
		if err != nil {
			return nil, stacktrace.New(err)
		}
	} else {
		var err error
		client, err = smtp.Dial(mailer.Host + ":" + mailer.Port)
		if err != nil {
			return nil, stacktrace.New(err)
		}
		if mailer.Port == "587" {
			err := client.StartTLS(&tls.Config{
				ServerName: mailer.Host,
			})
			if err != nil {
				return nil, stacktrace.New(err)
			}
		}
	}
	err := client.Auth(smtp.PlainAuth("", mailer.Username, mailer.Password, mailer.Host))
	if err != nil {
		return nil, stacktrace.New(err)
	}
	return client, nil
}

// start sends mail arriving on the C channel until Close is called.
func (mailer *Mailer) start() {
	defer close(mailer.stopped)
	timer := time.NewTimer(idleTimeout)
	timer.Stop()
	defer timer.Stop()
	var buf bytes.Buffer
	for {
		var mail Mail
		select {
		case <-mailer.baseCtx.Done():
			return
		case mail = <-mailer.C:
		}
		if mail.RcptTo == "" || !mailer.Limiter.Allow() {
			continue
		}
		client, err := mailer.NewClient()
		if err != nil {
			mailer.Logger.Error(err.Error())
			continue
		}
		for {
			err := mailer.send(client, &buf, mail)
			if err != nil {
				mailer.Logger.Error(err.Error(), slog.String("mailFrom", mail.MailFrom), slog.String("rcptTo", mail.RcptTo))
				break
			}
			timer.Reset(idleTimeout)
			var more bool
			select {
			case <-mailer.baseCtx.Done():
				client.Quit()
				return
			case <-timer.C:
			case mail = <-mailer.C:
				timer.Stop()
				more = mail.RcptTo != "" && mailer.Limiter.Allow() && client.Reset() == nil
			}
			if !more {
				break
			}
		}
		err = client.Quit()
		if err != nil {
			mailer.Logger.Error(err.Error())
		}
	}
}

func (mailer *Mailer) send(client *smtp.Client, buf *bytes.Buffer, mail Mail) error {
	err := client.Mail(mail.MailFrom)
	if err != nil {
		return stacktrace.New(err)
	}
	err = client.Rcpt(mail.RcptTo)
	if err != nil {
		return stacktrace.New(err)
	}
	buf.Reset()
	buf.WriteString("MIME-version: 1.0\r\n")
	buf.WriteString("From: " + headerValueReplacer.Replace(mail.MailFrom) + "\r\n")
	buf.WriteString("To: " + headerValueReplacer.Replace(mail.RcptTo) + "\r\n")
	for i := 0; i+1 < len(mail.Headers); i += 2 {
		name, value := mail.Headers[i], mail.Headers[i+1]
		buf.WriteString(headerNameReplacer.Replace(name) + ": " + headerValueReplacer.Replace(value) + "\r\n")
	}
	buf.WriteString("\r\n")
	writer, err := client.Data()
	if err != nil {
		return stacktrace.New(err)
	}
	_, err = io.Copy(writer, buf)
	if err == nil && mail.Body != nil {
		_, err = io.Copy(writer, mail.Body)
	}
	if err != nil {
		writer.Close()
		return stacktrace.New(err)
	}
	err = writer.Close()
	if err != nil {
		return stacktrace.New(err)
	}
	return nil
}

// Close stops the background job and waits for it to return.
func (mailer *Mailer) Close() error {
	mailer.baseCtxCancel()
	<-mailer.stopped
	return nil
}
