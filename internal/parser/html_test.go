package parser

import "testing"

func TestHTMLParserParse(t *testing.T) {
	p := NewHTMLParser()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "empty",
			html: "   ",
			want: "",
		},
		{
			name: "paragraphs and list",
			html: "<html><head><title>x</title></head><body><p>Hello&nbsp;world</p><ul><li>one</li><li>two</li></ul><script>alert(1)</script></body></html>",
			want: "Hello world\n- one\n- two",
		},
		{
			name: "table rows keep cells apart",
			html: "<table><tr><td>51234567890</td><td>missing reading</td></tr><tr><td>51234567891</td><td>wrong tariff</td></tr></table>",
			want: "51234567890\tmissing reading\n51234567891\twrong tariff",
		},
		{
			name: "quoted history removed",
			html: "<div>Please check.</div><blockquote type=\"cite\"><p>old thread</p></blockquote><div class=\"gmail_quote\">older</div>",
			want: "Please check.",
		},
		{
			name: "invisible characters and source whitespace",
			html: "<p>Invoice\u200b   \n  number</p>",
			want: "Invoice number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.html)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %q, want %q", got, tt.want)
			}
		})
	}
}
