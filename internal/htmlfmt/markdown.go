package htmlfmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```(.*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
	linkRe       = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
	bareURLRe    = regexp.MustCompile(`(?:https?|tg)://[^\s<>"]+`)
	boldRe       = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicRe     = regexp.MustCompile(`(^|[^\p{L}\p{N}_])_([^_\n]+)_($|[^\p{L}\p{N}_])`)
	strikeRe     = regexp.MustCompile(`~([^~\n]+)~`)
	headerRe     = regexp.MustCompile(`(?m)^# (.+)$`)
	placeholder  = regexp.MustCompile("\x00(\\d+)\x00")
)

// Markdown converts a small markdown-like syntax to HTML:
// *bold*, _italic_, ~strike~, `code`, ```pre```, [text](url) and "# header"
// lines (underlined). Anything else, including HTML the author typed, is
// passed through untouched. Code and URLs are never reformatted.
func Markdown(text string) string {
	var protected []string
	protect := func(s string) string {
		protected = append(protected, s)
		return fmt.Sprintf("\x00%d\x00", len(protected)-1)
	}

	text = codeBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		return protect("<pre>" + Escape(codeBlockRe.FindStringSubmatch(m)[1]) + "</pre>")
	})
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		return protect("<code>" + Escape(inlineCodeRe.FindStringSubmatch(m)[1]) + "</code>")
	})
	text = linkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		return `<a href="` + protect(sub[2]) + `">` + sub[1] + "</a>"
	})
	text = bareURLRe.ReplaceAllStringFunc(text, protect)

	text = boldRe.ReplaceAllString(text, "<b>$1</b>")
	text = italicRe.ReplaceAllString(text, "${1}<i>${2}</i>${3}")
	text = strikeRe.ReplaceAllString(text, "<s>$1</s>")
	text = headerRe.ReplaceAllString(text, "<u>$1</u>")

	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		i, err := strconv.Atoi(strings.Trim(m, "\x00"))
		if err != nil || i >= len(protected) {
			return m
		}
		return protected[i]
	})
}
