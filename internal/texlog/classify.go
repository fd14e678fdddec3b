package texlog

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// Severity grades a classified log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// Entry is one classified diagnostic from an engine log. Line is 1-based and
// zero when the log carried no usable position.
type Entry struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
}

// Report is the classification of one pass's log. Entries preserve discovery
// order. RerunHints holds the matched rerun marker lines so the caller can
// surface them as warnings when the pass cap cuts the loop short. Fatal and
// NeedsRerun are reported independently even when both markers appear in the
// same log.
type Report struct {
	Entries    []Entry
	RerunHints []string
	NeedsRerun bool
	Fatal      bool
}

// rerunMarkers are the engine's hints that the aux files changed and another
// pass would converge cross-references or citations.
var rerunMarkers = []string{
	"Label(s) may have changed. Rerun",
	"Rerun to get cross-references right",
	"Rerun to get citations correct",
	"There were undefined references",
	"There were undefined citations",
}

const fatalSummaryMarker = "Fatal error occurred, no output PDF file produced!"

var (
	// -file-line-error turns "! error" into "./file.tex:12: error".
	fileLineRe = regexp.MustCompile(`^(?:\./)?(\S+\.(?:tex|sty|cls|def|ltx|bib|bbl)):(\d+): ?(.*)$`)
	// TeX's own error context ends with "l.<n> <source text>".
	texLineRe = regexp.MustCompile(`^l\.(\d+)`)
	// "Package natbib Warning:" style lines.
	packageWarningRe = regexp.MustCompile(`^Package\s+\S+\s+Warning:`)
)

const latexWarningPrefix = "LaTeX Warning: "

var boxWarningPrefixes = []string{
	`Overfull \hbox`,
	`Underfull \hbox`,
	`Overfull \vbox`,
	`Underfull \vbox`,
}

// Classify scans one pass's raw log. Lines matching no marker class are
// discarded.
func Classify(raw []byte) Report {
	var rep Report

	// Index of the most recent fatal entry still waiting for a line number
	// from a following "l.<n>" context line.
	pending := -1

	scanner := bufio.NewScanner(strings.NewReader(decode(raw)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if isRerunHint(line) {
			rep.RerunHints = append(rep.RerunHints, strings.TrimPrefix(line, latexWarningPrefix))
			rep.NeedsRerun = true
			continue
		}

		if m := texLineRe.FindStringSubmatch(line); m != nil {
			if pending >= 0 {
				rep.Entries[pending].Line = mustAtoi(m[1])
				pending = -1
			}
			continue
		}

		if m := fileLineRe.FindStringSubmatch(line); m != nil {
			rep.Entries = append(rep.Entries, Entry{
				Severity: SeverityError,
				Message:  strings.TrimSpace(m[3]),
				Line:     mustAtoi(m[2]),
			})
			rep.Fatal = true
			pending = -1
			continue
		}

		if strings.Contains(line, fatalSummaryMarker) {
			rep.Entries = append(rep.Entries, Entry{Severity: SeverityFatal, Message: fatalSummaryMarker})
			rep.Fatal = true
			pending = -1
			continue
		}

		if msg, ok := strings.CutPrefix(line, "! "); ok {
			rep.Entries = append(rep.Entries, Entry{Severity: SeverityError, Message: strings.TrimSpace(msg)})
			rep.Fatal = true
			pending = len(rep.Entries) - 1
			continue
		}

		if strings.HasPrefix(line, "Runaway argument?") {
			rep.Entries = append(rep.Entries, Entry{Severity: SeverityError, Message: "Runaway argument"})
			rep.Fatal = true
			pending = len(rep.Entries) - 1
			continue
		}

		if entry, ok := warningEntry(line); ok {
			rep.Entries = append(rep.Entries, entry)
			continue
		}
	}

	return rep
}

// isRerunHint reports whether the line carries one of the rerun markers.
// Checked before the warning class: most hints arrive wrapped in a
// "LaTeX Warning:" line and must not be double-counted.
func isRerunHint(line string) bool {
	for _, marker := range rerunMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// warningEntry classifies the non-fatal warning vocabulary.
func warningEntry(line string) (Entry, bool) {
	if msg, ok := strings.CutPrefix(line, latexWarningPrefix); ok {
		return Entry{Severity: SeverityWarning, Message: strings.TrimSpace(msg)}, true
	}
	if packageWarningRe.MatchString(line) {
		return Entry{Severity: SeverityWarning, Message: strings.TrimSpace(line)}, true
	}
	for _, prefix := range boxWarningPrefixes {
		if strings.HasPrefix(line, prefix) {
			return Entry{Severity: SeverityWarning, Message: strings.TrimSpace(line)}, true
		}
	}
	return Entry{}, false
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
