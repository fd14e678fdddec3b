// Package texconv renders Markdown as a standalone LaTeX document so plain
// notes can go through the same compile pipeline as native sources. It covers
// the everyday constructs (headings, emphasis, lists, code, links, quotes);
// anything else degrades to its plain text content rather than failing.
package texconv
