package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	textcases "golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/email"
	"github.com/mixelka/clarify/pkg/models"
)

// Legal form words dropped from the end of partner names
var legalForms = map[string]bool{
	"gmbh": true, "mbh": true, "ag": true, "kg": true, "kgaa": true, "ohg": true,
	"se": true, "eg": true, "ev": true, "co": true, "ug": true, "haftungsbeschrankt": true,
	"ltd": true, "limited": true, "inc": true, "llc": true, "plc": true, "bv": true, "sa": true,
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NameKey normalizes an organization name for matching:
// case folded, accents removed, punctuation dropped, trailing legal form removed.
func NameKey(name string) string {
	s := textcases.Fold().String(name)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for len(fields) > 1 && legalForms[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// resolvePartner finds the sender organization by mail domain, then by name, and creates it when unknown.
// It returns nil when neither a usable domain nor a name is available.
func resolvePartner(ctx context.Context, tx Tx, res *models.ExtractionResult, msg *models.NormalizedMessage) (*models.Partner, error) {
	domain := res.Partner.Domain
	if domain == "" || email.IsPublicProvider(domain) {
		domain = email.DomainOf(msg.From.Address)
	}
	if email.IsPublicProvider(domain) {
		domain = ""
	}

	if domain != "" {
		p, err := tx.FindPartnerByDomain(ctx, domain)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}

	name := res.Partner.Name
	if name == "" {
		name = msg.From.Name
	}
	key := NameKey(name)
	if key != "" {
		p, err := tx.FindPartnerByNameKey(ctx, key)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}

	if key == "" && domain == "" {
		return nil, nil
	}
	if name == "" {
		name = domain
		key = NameKey(domain)
	}

	p := &models.Partner{
		Name:        strings.TrimSpace(name),
		NameKey:     key,
		Domain:      domain,
		Codes:       strings.Join(res.Partner.Codes, ","),
		AutoCreated: true,
	}
	if err := tx.CreatePartner(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create partner: %w", err)
	}
	return p, nil
}
