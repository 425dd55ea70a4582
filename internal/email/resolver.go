package email

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// IMAP servers of public mail providers
var knownIMAPServers = map[string]string{
	"gmail.com":      "imap.gmail.com:993",
	"googlemail.com": "imap.gmail.com:993",
	"outlook.com":    "outlook.office365.com:993",
	"hotmail.com":    "outlook.office365.com:993",
	"live.com":       "outlook.office365.com:993",
	"msn.com":        "outlook.office365.com:993",
	"yahoo.com":      "imap.mail.yahoo.com:993",
	"yahoo.de":       "imap.mail.yahoo.com:993",
	"icloud.com":     "imap.mail.me.com:993",
	"me.com":         "imap.mail.me.com:993",
	"aol.com":        "imap.aol.com:993",
	"zoho.com":       "imap.zoho.com:993",
	"proton.me":      "127.0.0.1:1143", // ProtonMail Bridge
	"fastmail.com":   "imap.fastmail.com:993",
	"gmx.de":         "imap.gmx.net:993",
	"gmx.net":        "imap.gmx.net:993",
	"web.de":         "imap.web.de:993",
	"t-online.de":    "secureimap.t-online.de:993",
	"freenet.de":     "mx.freenet.de:993",
	"posteo.de":      "posteo.de:993",
	"mailbox.org":    "imap.mailbox.org:993",
}

// IsPublicProvider reports whether domain belongs to a public mail provider.
// Such domains say nothing about the sender organization.
func IsPublicProvider(domain string) bool {
	_, ok := knownIMAPServers[strings.ToLower(domain)]
	return ok
}

// DomainOf extracts the lower-cased domain of an address
func DomainOf(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(address[at+1:], ">"))
}

// ResolveIMAPServer determines host and port of the IMAP server for an address
func ResolveIMAPServer(ctx context.Context, address string) (string, int, error) {
	domain := DomainOf(address)
	if domain == "" {
		return "", 0, fmt.Errorf("invalid email address: %q", address)
	}

	if server, ok := knownIMAPServers[domain]; ok {
		return splitServer(server)
	}

	for _, host := range []string{"imap." + domain, "mail." + domain, domain} {
		if reachable(ctx, host, 993) {
			return host, 993, nil
		}
	}

	if host, err := resolveViaMX(ctx, domain); err == nil {
		return host, 993, nil
	}

	return "imap." + domain, 993, nil
}

func splitServer(server string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(server)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func reachable(ctx context.Context, host string, port int) bool {
	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// resolveViaMX derives the IMAP host from the primary MX record, mx.example.com -> imap.example.com
func resolveViaMX(ctx context.Context, domain string) (string, error) {
	records, err := net.DefaultResolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return "", fmt.Errorf("no MX records found")
	}

	mxHost := strings.TrimSuffix(records[0].Host, ".")
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) == 2 {
		for _, host := range []string{"imap." + parts[1], "mail." + parts[1]} {
			if reachable(ctx, host, 993) {
				return host, nil
			}
		}
	}

	return "", fmt.Errorf("could not determine IMAP server")
}
