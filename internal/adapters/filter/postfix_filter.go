package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/ports"
)

// DefaultSubjectPrefix tags high-risk messages when no prefix is configured
const DefaultSubjectPrefix = "[**PHISHING**] "

// PostfixOptions configures the SMTP content filter
type PostfixOptions struct {
	ListenAddress  string
	BlockPhishing  bool
	StatusHeader   string
	ScoreHeader    string
	ReasonHeader   string
	PostfixAddress string
	PostfixPort    int
	PostfixEnabled bool
	SubjectPrefix  string
	ModifySubject  bool
	// AnalysisTimeout bounds the scoring of a single message
	AnalysisTimeout time.Duration
}

// PostfixFilter is a Postfix after-queue content filter: it scores each
// message on the email path, stamps verdict headers and reinjects it.
type PostfixFilter struct {
	analyzer ports.Analyzer
	logger   *zap.Logger
	opts     PostfixOptions
	server   *smtp.Server
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(analyzer ports.Analyzer, logger *zap.Logger, opts PostfixOptions) *PostfixFilter {
	if opts.SubjectPrefix == "" && opts.ModifySubject {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 10 * time.Second
	}
	if opts.StatusHeader == "" {
		opts.StatusHeader = "X-Phish-Status"
	}
	if opts.ScoreHeader == "" {
		opts.ScoreHeader = "X-Phish-Score"
	}
	if opts.ReasonHeader == "" {
		opts.ReasonHeader = "X-Phish-Reasons"
	}

	return &PostfixFilter{
		analyzer: analyzer,
		logger:   logger,
		opts:     opts,
	}
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.opts.ListenAddress
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting", zap.String("address", f.opts.ListenAddress))

	server := f.server
	go func() {
		if err := server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// Submit analyzes input, degrading failures to the fallback verdict
func (f *PostfixFilter) Submit(ctx context.Context, input core.AnalysisInput) *core.RiskResult {
	result, _ := submit(ctx, f.analyzer, f.logger, input)
	return result
}

// processMessage scores raw and returns the message to reinject. A non-nil
// *smtp.SMTPError means the message must be rejected.
func (f *PostfixFilter) processMessage(ctx context.Context, envelopeSender string, raw []byte) ([]byte, error) {
	var input core.AnalysisInput
	parsed, parseErr := ParseMessage(raw)
	if parseErr != nil {
		f.logger.Warn("Failed to parse message, scoring envelope only",
			zap.String("sender", envelopeSender),
			zap.Error(parseErr))
		input = core.NewEmailInput(envelopeSender, "", "")
	} else {
		input = parsed.Input(envelopeSender)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.AnalysisTimeout)
	defer cancel()
	result, analysisErr := submit(ctx, f.analyzer, f.logger, input)

	highRisk := result.Status == core.StatusHighRisk
	if highRisk && f.opts.BlockPhishing && analysisErr == nil {
		f.logger.Info("Rejecting phishing email",
			zap.String("from", input.Sender),
			zap.Float64("score", result.Score),
			zap.Strings("reasons", result.Reasons))
		return nil, &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as phishing (score: %.2f)", result.Score),
		}
	}

	headerBlock, body := splitHeaderBody(raw)

	var out bytes.Buffer
	fmt.Fprintf(&out, "%s: %s\r\n", f.opts.StatusHeader, result.Status)
	fmt.Fprintf(&out, "%s: %s\r\n", f.opts.ScoreHeader, strconv.FormatFloat(result.Score, 'f', 2, 64))
	fmt.Fprintf(&out, "%s: %s\r\n", f.opts.ReasonHeader, headerValue(strings.Join(result.Reasons, "; ")))
	if analysisErr != nil {
		fmt.Fprintf(&out, "X-Phish-Analysis-Error: %s\r\n", headerValue(analysisErr.Error()))
	}

	if highRisk && f.opts.ModifySubject && parsed != nil {
		headerBlock = f.prefixSubject(headerBlock, parsed.Subject)
	}
	out.Write(headerBlock)
	out.Write(body)

	f.logger.Info("Processed email",
		zap.String("from", input.Sender),
		zap.String("status", string(result.Status)),
		zap.Float64("score", result.Score))

	return out.Bytes(), nil
}

// prefixSubject replaces the Subject header (including folded lines) with
// the prefixed decoded subject, or adds one when the message has none
func (f *PostfixFilter) prefixSubject(headerBlock []byte, subject string) []byte {
	if strings.HasPrefix(subject, f.opts.SubjectPrefix) {
		return headerBlock
	}
	newLine := "Subject: " + headerValue(f.opts.SubjectPrefix+subject) + "\r\n"

	lines := strings.SplitAfter(string(headerBlock), "\n")
	var out strings.Builder
	replaced, skipping := false, false
	for _, line := range lines {
		if skipping && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			continue
		}
		skipping = false
		if !replaced && len(line) >= 8 && strings.EqualFold(line[:8], "subject:") {
			out.WriteString(newLine)
			replaced, skipping = true, true
			continue
		}
		out.WriteString(line)
	}
	if !replaced {
		return append([]byte(newLine), headerBlock...)
	}
	return []byte(out.String())
}

// splitHeaderBody splits raw after the blank line ending the header block.
// The header part keeps its trailing line break, the body starts with the blank line.
func splitHeaderBody(raw []byte) ([]byte, []byte) {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx+2], raw[idx+2:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx+1], raw[idx+1:]
	}
	// headers only
	header := raw
	if !bytes.HasSuffix(header, []byte("\n")) {
		header = append(append([]byte(nil), raw...), '\r', '\n')
	}
	return header, []byte("\r\n")
}

// headerValue makes s safe for a single header line
func headerValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// sendToPostfix sends the processed email back to Postfix on the configured port
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	postfixAddr := net.JoinHostPort(f.opts.PostfixAddress, strconv.Itoa(f.opts.PostfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}

	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// the message has already been accepted
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data scores the message and reinjects it into Postfix
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	modified, err := s.filter.processMessage(context.Background(), s.sender, raw)
	if err != nil {
		return err
	}

	if !s.filter.opts.PostfixEnabled {
		s.filter.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
		return nil
	}

	if err := s.filter.sendToPostfix(s.sender, s.recipients, modified); err != nil {
		s.filter.logger.Error("Failed to send email back to Postfix",
			zap.Error(err),
			zap.String("sender", s.sender))
		return err
	}

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
