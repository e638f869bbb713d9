package parser

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alan_Turing", "Alan Turing"},
		{"Alan  Turing ", "Alan Turing"},
		{"Alan%20Turing", "Alan Turing"},
		{"Quantum mechanics#History", "Quantum mechanics"},
		{"  G%C3%B6del  ", "Gödel"},
		{"C++", "C++"},
		{"A+ (grade)", "A+ (grade)"},
		{"AT%26T", "AT&T"},
		{"", ""},
		{"#fragment-only", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTitlePreservesCase(t *testing.T) {
	if got := NormalizeTitle("McCarthy_(surname)"); got != "McCarthy (surname)" {
		t.Errorf("got %q, case must be preserved", got)
	}
}

func TestDefaultTitleFilter(t *testing.T) {
	accept := []string{
		"Alan Turing",
		"Go (programming language)",
		"Star Trek: The Next Generation",
		"2001: A Space Odyssey",
	}
	reject := []string{
		"",
		"File:Turing.jpg",
		"Image:Logo.png",
		"Category:Computer scientists",
		"Template:Infobox",
		"Special:Random",
		"Help:Editing",
		"Portal:Science",
		"Talk:Alan Turing",
		"Wikipedia:Manual of Style",
		"fr:Alan Turing",
		"zh-yue:Hong Kong",
		"Mercury (disambiguation)",
	}
	for _, title := range accept {
		if !DefaultTitleFilter(title) {
			t.Errorf("filter rejected %q, want accept", title)
		}
	}
	for _, title := range reject {
		if DefaultTitleFilter(title) {
			t.Errorf("filter accepted %q, want reject", title)
		}
	}
}

const sampleWikitext = `{{Infobox scientist
| name = Alan Turing
}}
'''Alan Turing''' was an English [[mathematician]] and [[Computer_science|computer scientist]].<ref>Hodges 1983</ref>

== Early life ==
Turing was born in [[London]].

=== Education ===
He studied at [[King's College, Cambridge|King's College]].

== Legacy ==
The [[Turing Award]] is named after him. See also [[Alan Turing]] himself.

[[Category:English mathematicians]]
[[Category:Computer scientists]]
[[fr:Alan Turing]]
`

func TestParseWikitextSections(t *testing.T) {
	p := ParseWikitext(sampleWikitext, nil)

	if len(p.Sections) != 4 {
		t.Fatalf("got %d sections, want 4: %+v", len(p.Sections), p.Sections)
	}
	if p.Sections[0].Heading != "" || p.Sections[0].Ordinal != 0 {
		t.Errorf("lead section = %+v, want empty heading at ordinal 0", p.Sections[0])
	}
	if p.Sections[1].Heading != "Early life" || p.Sections[1].Level != 1 {
		t.Errorf("section 1 = %+v", p.Sections[1])
	}
	if p.Sections[2].Heading != "Education" || p.Sections[2].Level != 2 {
		t.Errorf("section 2 = %+v", p.Sections[2])
	}
	if p.Sections[3].Heading != "Legacy" || p.Sections[3].Level != 1 {
		t.Errorf("section 3 = %+v", p.Sections[3])
	}

	// Markup is cleaned: labels survive, brackets and refs do not.
	if lead := p.Sections[0].Text; !strings.Contains(lead, "computer scientist") ||
		strings.Contains(lead, "[[") || strings.Contains(lead, "<ref>") ||
		strings.Contains(lead, "Infobox") {
		t.Errorf("lead not cleaned: %q", lead)
	}
}

func TestParseWikitextLinksAndCategories(t *testing.T) {
	p := ParseWikitext(sampleWikitext, nil)

	wantLinks := []string{
		"mathematician", "Computer science", "London",
		"King's College, Cambridge", "Turing Award", "Alan Turing",
	}
	if !reflect.DeepEqual(p.Links, wantLinks) {
		t.Errorf("links = %v, want %v", p.Links, wantLinks)
	}

	wantCats := []string{"English mathematicians", "Computer scientists"}
	if !reflect.DeepEqual(p.Categories, wantCats) {
		t.Errorf("categories = %v, want %v", p.Categories, wantCats)
	}
}

func TestParseWikitextDeduplicatesLinks(t *testing.T) {
	p := ParseWikitext("[[London]] and [[London]] and [[london_calling|London Calling]]", nil)
	want := []string{"London", "london calling"}
	if !reflect.DeepEqual(p.Links, want) {
		t.Errorf("links = %v, want %v", p.Links, want)
	}
}

func TestParseWikitextWordCounts(t *testing.T) {
	p := ParseWikitext("one two three\n\n== H ==\nfour five", nil)
	if len(p.Sections) != 2 {
		t.Fatalf("got %d sections", len(p.Sections))
	}
	if p.Sections[0].WordCount != 3 || p.Sections[1].WordCount != 2 {
		t.Errorf("word counts = %d, %d", p.Sections[0].WordCount, p.Sections[1].WordCount)
	}
	if p.WordCount() != 5 {
		t.Errorf("total = %d, want 5", p.WordCount())
	}
}

const sampleHTML = `<html><head><title>Goroutines</title>
<script>var x = 1;</script></head>
<body>
<nav><a href="/index.html">Home</a></nav>
<main>
<h1>Goroutines</h1>
<p>A goroutine is a lightweight thread managed by the Go runtime.</p>
<h2>Channels</h2>
<p>Channels connect <a href="/docs/concurrency.html">concurrent</a> goroutines.</p>
<p>See <a href="https://other-site.example.com/page.html">external</a> and
<a href="/wiki/Select_statement">select</a> and <a href="#top">top</a>
and <a href="/img/diagram.png">a diagram</a>.</p>
</main>
<footer><a href="/about.html">About</a></footer>
</body></html>`

func TestParseHTMLSections(t *testing.T) {
	p, err := ParseHTML(sampleHTML, "https://docs.example.com", nil)
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}

	if len(p.Sections) != 2 {
		t.Fatalf("got %d sections: %+v", len(p.Sections), p.Sections)
	}
	if p.Sections[0].Heading != "Goroutines" || p.Sections[0].Level != 1 {
		t.Errorf("section 0 = %+v", p.Sections[0])
	}
	if p.Sections[1].Heading != "Channels" || p.Sections[1].Level != 2 {
		t.Errorf("section 1 = %+v", p.Sections[1])
	}
	if strings.Contains(p.Sections[0].Text, "var x") {
		t.Errorf("script content leaked into section text")
	}
}

func TestParseHTMLLinks(t *testing.T) {
	p, err := ParseHTML(sampleHTML, "https://docs.example.com", nil)
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}

	want := []string{"concurrency", "Select statement"}
	if !reflect.DeepEqual(p.Links, want) {
		t.Errorf("links = %v, want %v", p.Links, want)
	}
}
