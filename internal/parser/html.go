package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser converts HTML mail bodies to plain text for extraction.
// Table rows become tab separated lines so list detection sees them as rows.
type HTMLParser struct {
	sourceSpaceRegex *regexp.Regexp
	spaceRegex       *regexp.Regexp
	newlineRegex     *regexp.Regexp
	invisibleRegex   *regexp.Regexp
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		sourceSpaceRegex: regexp.MustCompile(`\s+`),
		// Spaces and newlines, tabs are kept as cell separators
		spaceRegex:   regexp.MustCompile(`[^\S\n\t]+`),
		newlineRegex: regexp.MustCompile(`\n{3,}`),
		// Zero-width and other invisible characters used by mail tracking templates
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{115F}\x{1160}\x{17B4}\x{17B5}\x{180E}\x{2060}-\x{2064}\x{206A}-\x{206F}\x{FE00}-\x{FE0F}\x{FFF0}-\x{FFF8}]+`),
	}
}

// Parse converts HTML to clean plain text
func (p *HTMLParser) Parse(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, img").Remove()

	// Quoted history of the thread is noise for extraction
	doc.Find("blockquote[type=cite], div.gmail_quote").Remove()

	// Source formatting is not layout; only the markers below break lines
	doc.Find("*").Contents().Each(func(i int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			s.Nodes[0].Data = p.sourceSpaceRegex.ReplaceAllString(s.Nodes[0].Data, " ")
		}
	})

	doc.Find("td, th").Each(func(i int, s *goquery.Selection) {
		if s.Prev().Length() > 0 {
			s.PrependHtml("\t")
		}
	})
	doc.Find("li").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = p.invisibleRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = p.spaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	clean := lines[:0]
	for _, line := range lines {
		line = strings.Trim(line, " ")
		if strings.Trim(line, "\t") != "" {
			clean = append(clean, line)
		}
	}
	text = strings.Join(clean, "\n")
	text = p.newlineRegex.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
