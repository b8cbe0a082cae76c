package mail

import (
	"crypto/tls"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Sender interface {
	Send(receivers []string, subject, body string) error
	GetHost() string
}

type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	SenderAddress      string
	SenderName         string
	InsecureSkipVerify bool
	RetryCount         int
	RetryBackoff       time.Duration
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type sender struct {
	dialer        dialer
	host          string
	senderAddress string
	senderName    string
	retryCount    int
	retryBackoff  time.Duration
	logger        *zap.SugaredLogger
	sleep         func(time.Duration)
}

func NewSender(cfg Config, logger *zap.SugaredLogger) Sender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("mail")
	logger.Debugw("Initializing mail sender", "host", cfg.Host, "port", cfg.Port, "user", cfg.Username)
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		logger.Warn("InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host}
	}
	return newSender(d, cfg, logger)
}

func newSender(d dialer, cfg Config, logger *zap.SugaredLogger) *sender {
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = "flowctl"
	}
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 2
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 500 * time.Millisecond
	}
	return &sender{
		dialer:        d,
		host:          cfg.Host,
		senderAddress: cfg.SenderAddress,
		senderName:    senderName,
		retryCount:    retryCount,
		retryBackoff:  retryBackoff,
		logger:        logger,
		sleep:         time.Sleep,
	}
}

func (s *sender) message(receivers []string, subject, body string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("To", receivers...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	return msg
}

func (s *sender) Send(receivers []string, subject, body string) error {
	if len(receivers) == 0 {
		return errors.New("no mail receivers configured")
	}
	msg := s.message(receivers, subject, body)

	var lastErr error
	backoff := s.retryBackoff
	for attempt := 0; attempt <= s.retryCount; attempt++ {
		err := s.dialer.DialAndSend(msg)
		if err == nil {
			s.logger.Infow("Mail sent", "receivers", len(receivers), "attempt", attempt+1)
			return nil
		}
		lastErr = err
		if attempt < s.retryCount {
			s.logger.Debugw("Mail send attempt failed", "attempt", attempt+1, "error", err, "retry_in", backoff)
			s.sleep(backoff)
			backoff = time.Duration(math.Min(float64(backoff)*2, float64(30*time.Second)))
		}
	}
	s.logger.Warnw("Failed to send mail", "attempts", s.retryCount+1, "error", lastErr)
	return lastErr
}

func (s *sender) GetHost() string {
	return s.host
}
