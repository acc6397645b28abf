package pipeline

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// DocumentRenderer produces a document artifact from tailored text.
//
// Layout fidelity is a product concern; this renderer produces
// structurally valid markdown, plain text, or HTML and nothing more.
type DocumentRenderer struct{}

func (r *DocumentRenderer) Render(ctx context.Context, text string, template string, format Format) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch format {
	case FormatMarkdown, "":
		return []byte(text), nil
	case FormatText:
		return []byte(stripMarkdown(text)), nil
	case FormatHTML:
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html><body>\n")
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if heading, ok := strings.CutPrefix(line, "# "); ok {
				fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(heading))
				continue
			}
			if heading, ok := strings.CutPrefix(line, "## "); ok {
				fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(heading))
				continue
			}
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(line))
		}
		b.WriteString("</body></html>\n")
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("unsupported render format: %s", format)
	}
}

func stripMarkdown(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, "#*- ")
		b.WriteString(trimmed)
		b.WriteString("\n")
	}
	return b.String()
}

// ArtifactExt returns the file extension for a render format.
func ArtifactExt(format Format) string {
	switch format {
	case FormatText:
		return ".txt"
	case FormatHTML:
		return ".html"
	default:
		return ".md"
	}
}

// Compile-time check that DocumentRenderer implements Renderer.
var _ Renderer = (*DocumentRenderer)(nil)
