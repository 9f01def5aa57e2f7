package notification

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	htmlBreakRe = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</li>|</div>`)
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
	blankRunRe  = regexp.MustCompile(`[ \t]+`)
)

// plainToHTML renders a plain body as simple HTML. Lines starting with a
// bullet become list items.
func plainToHTML(text string) string {
	var sb strings.Builder
	inList := false
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		isItem := strings.HasPrefix(stripped, "•") || strings.HasPrefix(stripped, "- ")
		if isItem && !inList {
			sb.WriteString("<ul>")
			inList = true
		}
		if !isItem && inList {
			sb.WriteString("</ul>")
			inList = false
		}
		switch {
		case isItem:
			item := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(stripped, "•"), "- "))
			fmt.Fprintf(&sb, "<li>%s</li>", html.EscapeString(item))
		case stripped == "":
			sb.WriteString("<br>")
		default:
			fmt.Fprintf(&sb, "<p>%s</p>", html.EscapeString(stripped))
		}
	}
	if inList {
		sb.WriteString("</ul>")
	}
	return `<html><body style="font-family: Arial, sans-serif; font-size: 14px; color: #333; max-width: 600px;">` +
		sb.String() + `</body></html>`
}

// stripHTML reduces an HTML body to readable text.
func stripHTML(s string) string {
	s = htmlBreakRe.ReplaceAllString(s, "\n")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(blankRunRe.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
