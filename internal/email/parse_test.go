package email

import (
	"strings"
	"testing"
)

const multipartMessage = "From: \"Stadtwerke Nord\" <Billing@SW-Nord.de>\r\n" +
	"To: billing-team@example.com, Anna <anna@example.com>\r\n" +
	"Cc: archive@example.com\r\n" +
	"Subject: =?UTF-8?Q?Rechnung_M=C3=A4rz?=\r\n" +
	"Date: Mon, 02 Mar 2026 10:15:00 +0100\r\n" +
	"Message-ID: <abc123@sw-nord.de>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=iso-8859-1\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Marktlokation 51234567890: Z=E4hlerstand fehlt.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Marktlokation 51234567890</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"invoice.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--outer--\r\n"

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage(17, strings.NewReader(multipartMessage))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if msg.UID != 17 || msg.MessageID != "abc123@sw-nord.de" {
		t.Errorf("uid %d message id %q", msg.UID, msg.MessageID)
	}
	if msg.Subject != "Rechnung März" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.From.Name != "Stadtwerke Nord" || msg.From.Address != "billing@sw-nord.de" {
		t.Errorf("from = %+v", msg.From)
	}
	if len(msg.To) != 2 || msg.To[1].Name != "Anna" || len(msg.Cc) != 1 {
		t.Errorf("to = %+v cc = %+v", msg.To, msg.Cc)
	}
	if msg.Date.Hour() != 9 || msg.Date.Location().String() != "UTC" {
		t.Errorf("date = %v, want 09:15 UTC", msg.Date)
	}
	if msg.Body != "Marktlokation 51234567890: Zählerstand fehlt." {
		t.Errorf("body = %q", msg.Body)
	}
	if !strings.Contains(msg.HTMLBody, "<p>Marktlokation") {
		t.Errorf("html body = %q", msg.HTMLBody)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Filename != "invoice.pdf" || msg.Attachments[0].Size != 9 {
		t.Errorf("attachments = %+v", msg.Attachments)
	}
}

func TestParseMessagePlain(t *testing.T) {
	raw := "From: partner@example.com\r\nSubject: Hello\r\n\r\nJust text.\r\n"
	msg, err := ParseMessage(1, strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Body != "Just text." || msg.From.Address != "partner@example.com" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Date.IsZero() {
		t.Error("missing Date header left zero time")
	}
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	if _, err := ParseMessage(1, strings.NewReader("this line has no colon\r\n\r\nbody")); err == nil {
		t.Error("ParseMessage() error = nil for malformed header")
	}
}

func TestDomainOf(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Billing@SW-Nord.de", "sw-nord.de"},
		{"<a@b.de>", "b.de"},
		{"no-at-sign", ""},
		{"trailing@", ""},
	}
	for _, tt := range tests {
		if got := DomainOf(tt.in); got != tt.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if !IsPublicProvider("GMAIL.com") || IsPublicProvider("sw-nord.de") {
		t.Error("IsPublicProvider() misclassified")
	}
}
