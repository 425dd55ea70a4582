package email

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/clarify/pkg/models"
)

// ParseMessage decodes an RFC 822 message into a normalized message
func ParseMessage(uid uint32, r io.Reader) (*models.NormalizedMessage, error) {
	mr, err := mail.CreateReader(r)
	if mr == nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	msg := &models.NormalizedMessage{UID: uid}

	h := mr.Header
	msg.Subject, _ = h.Subject()
	msg.MessageID, _ = h.MessageID()
	if date, err := h.Date(); err == nil {
		msg.Date = date.UTC()
	} else {
		msg.Date = time.Now().UTC()
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = convertAddress(from[0])
	} else {
		msg.From = models.Address{Address: strings.Trim(h.Get("From"), " <>")}
	}
	msg.To = addressList(h, "To")
	msg.Cc = addressList(h, "Cc")

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			if msg.Body == "" && msg.HTMLBody == "" {
				return nil, fmt.Errorf("failed to read message part: %w", err)
			}
			break
		}
		if part == nil {
			continue
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/plain") && msg.Body == "":
				msg.Body = string(body)
			case strings.HasPrefix(ct, "text/html") && msg.HTMLBody == "":
				msg.HTMLBody = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			msg.Attachments = append(msg.Attachments, models.Attachment{
				Filename:    filename,
				ContentType: ct,
				Size:        int(size),
			})
		}
	}

	msg.Body = strings.TrimSpace(strings.ReplaceAll(msg.Body, "\r\n", "\n"))
	return msg, nil
}

func addressList(h mail.Header, key string) []models.Address {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]models.Address, 0, len(list))
	for _, a := range list {
		out = append(out, convertAddress(a))
	}
	return out
}

func convertAddress(a *mail.Address) models.Address {
	return models.Address{Name: a.Name, Address: strings.ToLower(a.Address)}
}
