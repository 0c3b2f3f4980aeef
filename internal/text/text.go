package text

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const ellipsis = "…"

// Citation is the short-link form of a post URI.
type Citation interface {
	// URI is the full short link.
	URI() string
	// String is the compact display form.
	String() string
}

var (
	camelBoundary = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// Hashtags renders tags as space separated, Pascal-cased hashtags.
func Hashtags(tags []string) string {
	caser := cases.Title(language.Und)
	var out []string
	for _, tag := range tags {
		var sb strings.Builder
		for _, part := range nonWord.Split(camelBoundary.ReplaceAllString(tag, "$1 $2"), -1) {
			if part == "" {
				continue
			}
			sb.WriteString(caser.String(part))
		}
		if sb.Len() > 0 {
			out = append(out, "#"+sb.String())
		}
	}
	return strings.Join(out, " ")
}

// Shorten keeps whole words of text while their space-joined length stays
// within limit bytes. A first word longer than limit is cut at a rune
// boundary.
func Shorten(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	words := strings.Fields(text)
	var b strings.Builder
	for _, w := range words {
		extra := len(w)
		if b.Len() > 0 {
			extra++
		}
		if b.Len()+extra > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() == 0 && len(words) > 0 {
		return cutRunes(words[0], limit)
	}
	return b.String()
}

func cutRunes(s string, limit int) string {
	end := 0
	for end < len(s) {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > limit {
			break
		}
		end += size
	}
	return s[:end]
}

// Render builds a status of at most budget bytes from an HTML description.
//
// A post that fits is emitted as "text\n#Tags uri", or "text\n#Tags (domain
// short)" when the description was cut at a heading. Otherwise the text is
// shortened to whole words and quoted: "\"words…\"\n#Tags uri".
func Render(description string, budget int, citation Citation, tags []string) string {
	body, long := PlainText(description)
	hashtags := Hashtags(tags)

	var tail string
	if long {
		tail = joinNonEmpty(hashtags, "("+citation.String()+")")
	} else {
		tail = joinNonEmpty(hashtags, citation.URI())
	}
	full := joinLines(body, tail)
	if len(full) <= budget {
		return full
	}

	tail = joinNonEmpty(hashtags, citation.URI())
	overhead := len("\n") + len(ellipsis) + 2
	limit := budget - len(tail) - overhead
	if limit < 0 {
		tail = citation.URI()
		limit = budget - len(tail) - overhead
	}
	if limit < 0 {
		return citation.URI()
	}
	return `"` + Shorten(body, limit) + ellipsis + `"` + "\n" + tail
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}
