// Package htmlfmt renders Telegram-formatted text as Bot API HTML.
package htmlfmt

import (
	"sort"
	"strings"
	"unicode/utf16"
)

// Entity is a formatting span. Offset and Length count UTF-16 code units,
// as the Bot API does.
type Entity struct {
	Type     string
	Offset   int
	Length   int
	URL      string
	Language string
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// Escape makes s safe to embed in Bot API HTML.
func Escape(s string) string {
	return escaper.Replace(s)
}

func tags(e Entity) (string, string, bool) {
	switch e.Type {
	case "bold":
		return "<b>", "</b>", true
	case "italic":
		return "<i>", "</i>", true
	case "underline":
		return "<u>", "</u>", true
	case "strikethrough":
		return "<s>", "</s>", true
	case "spoiler":
		return "<tg-spoiler>", "</tg-spoiler>", true
	case "code":
		return "<code>", "</code>", true
	case "pre":
		if e.Language != "" {
			return `<pre><code class="language-` + Escape(e.Language) + `">`, "</code></pre>", true
		}
		return "<pre>", "</pre>", true
	case "blockquote":
		return "<blockquote>", "</blockquote>", true
	case "text_link":
		if e.URL == "" {
			return "", "", false
		}
		return `<a href="` + Escape(e.URL) + `">`, "</a>", true
	default:
		return "", "", false
	}
}

type span struct {
	open, close string
	start, end  int
}

// FromEntities renders text with its entities as HTML. Text outside tags is
// escaped. Unsupported entity types are dropped; overlapping spans are split
// so the output stays well nested.
func FromEntities(text string, entities []Entity) string {
	units := utf16.Encode([]rune(text))

	spans := make([]span, 0, len(entities))
	for _, e := range entities {
		open, closeTag, ok := tags(e)
		if !ok || e.Length <= 0 || e.Offset < 0 || e.Offset >= len(units) {
			continue
		}
		end := min(e.Offset+e.Length, len(units))
		spans = append(spans, span{open: open, close: closeTag, start: e.Offset, end: end})
	}
	// Outer spans first when they start together.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var b strings.Builder
	var stack []span
	next := 0
	last := 0

	flush := func(pos int) {
		if pos > last {
			b.WriteString(Escape(string(utf16.Decode(units[last:pos]))))
			last = pos
		}
	}

	for pos := 0; pos <= len(units); pos++ {
		closing := false
		for _, s := range stack {
			if s.end == pos {
				closing = true
				break
			}
		}
		opening := next < len(spans) && spans[next].start == pos
		if !closing && !opening {
			continue
		}
		flush(pos)

		if closing {
			var reopen []span
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				b.WriteString(top.close)
				if top.end != pos {
					reopen = append(reopen, top)
				}
				if !anyEndingAt(stack, pos) {
					break
				}
			}
			for i := len(reopen) - 1; i >= 0; i-- {
				b.WriteString(reopen[i].open)
				stack = append(stack, reopen[i])
			}
		}

		for next < len(spans) && spans[next].start == pos {
			b.WriteString(spans[next].open)
			stack = append(stack, spans[next])
			next++
		}
	}
	flush(len(units))

	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString(stack[i].close)
	}
	return b.String()
}

func anyEndingAt(stack []span, pos int) bool {
	for _, s := range stack {
		if s.end == pos {
			return true
		}
	}
	return false
}
