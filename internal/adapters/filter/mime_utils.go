package filter

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/mikey/phishguard/internal/core"
)

// maxMIMEDepth bounds recursion into nested multipart bodies
const maxMIMEDepth = 5

var wordDecoder = &mime.WordDecoder{}

// ParsedMessage is an RFC 822 message reduced to the fields the engine scores
type ParsedMessage struct {
	Header  mail.Header
	From    string
	Subject string
	Text    string
}

// ParseMessage parses a raw message and extracts its readable text
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email message: %w", err)
	}

	text, err := extractText(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text content: %w", err)
	}

	return &ParsedMessage{
		Header:  msg.Header,
		From:    decodeHeaderOrRaw(msg.Header.Get("From")),
		Subject: decodeHeaderOrRaw(msg.Header.Get("Subject")),
		Text:    text,
	}, nil
}

// Input builds the email analysis input. The From header wins over the
// envelope sender because it is what the recipient sees.
func (m *ParsedMessage) Input(envelopeSender string) core.AnalysisInput {
	sender := m.From
	if sender == "" {
		sender = envelopeSender
	}
	return core.NewEmailInput(sender, m.Subject, m.Text)
}

// decodeEncodedHeader decodes RFC 2047 encoded words such as =?UTF-8?B?...?=
func decodeEncodedHeader(value string) (string, error) {
	return wordDecoder.DecodeHeader(value)
}

func decodeHeaderOrRaw(value string) string {
	decoded, err := decodeEncodedHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// extractText returns the text/plain content of a body, falling back to
// text/html when no plain part exists. Attachments are skipped.
func extractText(contentType, transferEncoding string, body io.Reader, depth int) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType = "text/plain"
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(decodeTransfer(transferEncoding, body))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	boundary, ok := params["boundary"]
	if !ok || depth >= maxMIMEDepth {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	var plain, html strings.Builder
	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// keep what was readable before the broken part
			break
		}

		if disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disposition == "attachment" {
			continue
		}

		partType := part.Header.Get("Content-Type")
		partMedia, _, _ := mime.ParseMediaType(partType)
		switch {
		case partType == "" || partMedia == "text/plain":
			text, err := extractText("text/plain", part.Header.Get("Content-Transfer-Encoding"), part, depth+1)
			if err == nil {
				plain.WriteString(text)
				plain.WriteString("\n")
			}
		case partMedia == "text/html":
			text, err := extractText(partMedia, part.Header.Get("Content-Transfer-Encoding"), part, depth+1)
			if err == nil {
				html.WriteString(text)
				html.WriteString("\n")
			}
		case strings.HasPrefix(partMedia, "multipart/"):
			text, err := extractText(partType, part.Header.Get("Content-Transfer-Encoding"), part, depth+1)
			if err == nil {
				plain.WriteString(text)
			}
		}
	}

	if plain.Len() > 0 {
		return plain.String(), nil
	}
	return html.String(), nil
}

// decodeTransfer undoes a Content-Transfer-Encoding. multipart.Reader
// already decodes quoted-printable parts and drops their header.
func decodeTransfer(encoding string, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}
