// Package source is the input boundary: it decides whether submitted bytes
// are compilable at all, and normalizes the accepted kinds to LaTeX before a
// job is ever queued. Rejections here are cheap; nothing has touched the
// filesystem yet.
package source

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/texconv"
)

// Kind names the accepted input flavors.
type Kind string

const (
	KindTeX      Kind = "tex"
	KindPlain    Kind = "txt"
	KindMarkdown Kind = "markdown"
)

// Document is a compile-ready source: TeX holds LaTeX regardless of what the
// caller submitted.
type Document struct {
	Filename string
	Kind     Kind
	TeX      []byte
}

// KindOf maps a filename extension to an input kind. Unknown extensions are a
// SourceError: silently compiling arbitrary bytes helps nobody.
func KindOf(filename string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tex", "":
		return KindTeX, nil
	case ".txt":
		return KindPlain, nil
	case ".md", ".markdown":
		return KindMarkdown, nil
	default:
		return "", texerrors.SourceError(fmt.Sprintf("unsupported file type %q (accepted: .tex, .txt, .md)", filepath.Ext(filename)))
	}
}

// Prepare validates raw input and returns the LaTeX document to compile.
// maxBytes caps the accepted size; zero or negative disables the cap.
func Prepare(filename string, raw []byte, maxBytes int64) (*Document, error) {
	if len(raw) == 0 {
		return nil, texerrors.SourceError("source is empty")
	}
	if maxBytes > 0 && int64(len(raw)) > maxBytes {
		return nil, texerrors.SourceError(fmt.Sprintf("source exceeds the %d byte limit", maxBytes))
	}

	kind, err := KindOf(filename)
	if err != nil {
		return nil, err
	}

	doc := &Document{Filename: filename, Kind: kind}
	switch kind {
	case KindTeX:
		doc.TeX = raw
	case KindPlain:
		if !HasPreamble(raw) {
			return nil, texerrors.SourceError("plain text input is missing a LaTeX preamble (\\documentclass and \\begin{document})")
		}
		doc.TeX = raw
	case KindMarkdown:
		tex, err := texconv.Convert(raw)
		if err != nil {
			return nil, err
		}
		doc.TeX = tex
	}
	return doc, nil
}

// HasPreamble reports whether data looks like a complete LaTeX document.
func HasPreamble(data []byte) bool {
	return bytes.Contains(data, []byte(`\documentclass`)) &&
		bytes.Contains(data, []byte(`\begin{document}`))
}
