package texconv

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	texerrors "github.com/texbuild/texbuild/internal/errors"
)

const documentHead = `\documentclass{article}
\usepackage[T1]{fontenc}
\usepackage[utf8]{inputenc}
\usepackage{hyperref}
\begin{document}
`

const documentTail = `\end{document}
`

// Convert renders a Markdown document as a compilable standalone LaTeX
// document.
func Convert(src []byte) ([]byte, error) {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	c := &converter{src: src}
	c.buf.WriteString(documentHead)
	if err := gmast.Walk(root, c.visit); err != nil {
		return nil, texerrors.WrapSource(err, "markdown conversion failed")
	}
	c.buf.WriteString(documentTail)
	return c.buf.Bytes(), nil
}

type converter struct {
	buf bytes.Buffer
	src []byte
}

func (c *converter) visit(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
	switch node := n.(type) {
	case *gmast.Document:

	case *gmast.Heading:
		if entering {
			c.buf.WriteString(sectionCommand(node.Level) + "{")
		} else {
			c.buf.WriteString("}\n\n")
		}

	case *gmast.Paragraph:
		if !entering {
			c.buf.WriteString("\n\n")
		}

	case *gmast.TextBlock:
		if !entering {
			c.buf.WriteString("\n")
		}

	case *gmast.Text:
		if entering {
			c.buf.WriteString(escape(string(node.Segment.Value(c.src))))
			if node.HardLineBreak() {
				c.buf.WriteString(`\\` + "\n")
			} else if node.SoftLineBreak() {
				c.buf.WriteString("\n")
			}
		}

	case *gmast.Emphasis:
		cmd := `\emph{`
		if node.Level >= 2 {
			cmd = `\textbf{`
		}
		if entering {
			c.buf.WriteString(cmd)
		} else {
			c.buf.WriteString("}")
		}

	case *gmast.CodeSpan:
		if entering {
			c.buf.WriteString(`\texttt{`)
		} else {
			c.buf.WriteString("}")
		}

	case *gmast.FencedCodeBlock:
		if entering {
			c.writeVerbatim(node.Lines())
		}
		return gmast.WalkSkipChildren, nil

	case *gmast.CodeBlock:
		if entering {
			c.writeVerbatim(node.Lines())
		}
		return gmast.WalkSkipChildren, nil

	case *gmast.List:
		env := "itemize"
		if node.IsOrdered() {
			env = "enumerate"
		}
		if entering {
			fmt.Fprintf(&c.buf, "\\begin{%s}\n", env)
		} else {
			fmt.Fprintf(&c.buf, "\\end{%s}\n\n", env)
		}

	case *gmast.ListItem:
		if entering {
			c.buf.WriteString(`\item `)
		}

	case *gmast.Link:
		if entering {
			fmt.Fprintf(&c.buf, `\href{%s}{`, escapeURL(string(node.Destination)))
		} else {
			c.buf.WriteString("}")
		}

	case *gmast.AutoLink:
		if entering {
			fmt.Fprintf(&c.buf, `\url{%s}`, escapeURL(string(node.URL(c.src))))
		}
		return gmast.WalkSkipChildren, nil

	case *gmast.Image:
		// No asset pipeline here: keep the alt text, drop the image itself.

	case *gmast.Blockquote:
		if entering {
			c.buf.WriteString("\\begin{quote}\n")
		} else {
			c.buf.WriteString("\\end{quote}\n\n")
		}

	case *gmast.ThematicBreak:
		if entering {
			c.buf.WriteString("\\medskip\\hrule\\medskip\n\n")
		}

	case *gmast.HTMLBlock, *gmast.RawHTML:
		return gmast.WalkSkipChildren, nil

	case *gmast.String:
		if entering {
			c.buf.WriteString(escape(string(node.Value)))
		}
	}
	return gmast.WalkContinue, nil
}

func (c *converter) writeVerbatim(lines *text.Segments) {
	c.buf.WriteString("\\begin{verbatim}\n")
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		c.buf.Write(seg.Value(c.src))
	}
	c.buf.WriteString("\\end{verbatim}\n\n")
}

func sectionCommand(level int) string {
	switch level {
	case 1:
		return `\section`
	case 2:
		return `\subsection`
	case 3:
		return `\subsubsection`
	case 4:
		return `\paragraph`
	default:
		return `\subparagraph`
	}
}

// escape guards the LaTeX special characters in prose text. Replacements are
// single-pass, so the backslash expansion is not re-escaped.
var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

func escape(s string) string {
	return latexEscaper.Replace(s)
}

// escapeURL guards only what breaks hyperref arguments; URLs are not prose.
var urlEscaper = strings.NewReplacer(
	`%`, `\%`,
	`#`, `\#`,
)

func escapeURL(s string) string {
	return urlEscaper.Replace(s)
}
