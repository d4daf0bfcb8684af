package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"x64cc/internal/ast"
)

// ErrorLevel is the severity attached to a diagnostic.
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// Kind is one of the four error categories the core propagates by value:
// StructuralError (malformed input the core itself detects),
// UnsupportedConstruct (well-formed but outside the implemented subset),
// InvariantViolation (a verifier failure — a compiler bug, not a user
// error), IOError (reading/writing files or spawning subprocesses).
type Kind string

const (
	KindStructural  Kind = "structural"
	KindUnsupported Kind = "unsupported"
	KindInvariant   Kind = "invariant"
	KindIO          Kind = "io"
)

// CompilerError is a structured diagnostic: its Kind decides how it
// renders (whether a source excerpt makes sense at all), its Code indexes
// the E-number table in codes.go, and the suggestion/note/help trailers
// carry whatever context the raising site attached.
type CompilerError struct {
	Kind        Kind
	Level       ErrorLevel
	Code        string       // Error code like E0001
	Message     string       // Primary error message
	Position    ast.Position // Location in source
	Length      int          // Length of the problematic region
	Suggestions []Suggestion // Suggested fixes
	Notes       []string     // Additional context notes
	HelpText    string       // Help text for the error
}

// Error renders the one-line form. Invariant and I/O errors carry no
// meaningful source position (the former point at compiler state, the
// latter at files and subprocesses), so only user-facing kinds append one.
func (e CompilerError) Error() string {
	head := string(e.Level)
	if e.Code != "" {
		head = fmt.Sprintf("%s[%s]", e.Level, e.Code)
	}
	switch e.Kind {
	case KindInvariant, KindIO:
		return fmt.Sprintf("%s: %s", head, e.Message)
	default:
		return fmt.Sprintf("%s: %s (%s)", head, e.Message, e.Position)
	}
}

// Suggestion is one suggested fix, optionally with replacement text to
// show inline.
type Suggestion struct {
	Message     string
	Replacement string
}

// ErrorReporter renders diagnostics against one source file, rustc-style:
// colored header, caret-marked excerpt, suggestion/note/help trailers.
type ErrorReporter struct {
	filename string
	lines    []string
}

// NewErrorReporter creates a reporter over a file's source text.
func NewErrorReporter(filename, source string) *ErrorReporter {
	return &ErrorReporter{filename: filename, lines: strings.Split(source, "\n")}
}

// FormatError renders one diagnostic. The error's Kind drives the shape:
// structural/unsupported diagnostics point into the user's code and get a
// source excerpt; an invariant violation is a bug in this compiler, so
// instead of an excerpt it gets a report-this note; an I/O failure has no
// source to excerpt at all.
func (er *ErrorReporter) FormatError(err CompilerError) string {
	var sb strings.Builder
	er.writeHeader(&sb, err)

	switch err.Kind {
	case KindInvariant:
		ice := color.New(color.FgMagenta).SprintFunc()
		fmt.Fprintf(&sb, "  %s this is a bug in the compiler, not in your program\n", ice("note:"))
	case KindIO:
		// Nothing to excerpt: the failure is in a file or subprocess.
	default:
		er.writeExcerpt(&sb, err)
	}

	er.writeTrailers(&sb, err)
	sb.WriteString("\n")
	return sb.String()
}

// writeHeader emits `error[E0001] (Structural): message`, with the level
// word colored by kind and severity and the code's category from codes.go
// dimmed alongside it. Invariant violations announce themselves as
// internal compiler errors up front.
func (er *ErrorReporter) writeHeader(sb *strings.Builder, err CompilerError) {
	paint := kindColor(err.Kind, err.Level)
	head := string(err.Level)
	if err.Kind == KindInvariant {
		head = "internal compiler " + head
	}
	if err.Code == "" {
		fmt.Fprintf(sb, "%s: %s\n", paint(head), err.Message)
		return
	}
	category := ""
	if c := GetErrorCategory(err.Code); c != "" {
		dim := color.New(color.Faint).SprintFunc()
		category = " " + dim("("+c+")")
	}
	fmt.Fprintf(sb, "%s[%s]%s: %s\n", paint(head), err.Code, category, err.Message)
}

// writeExcerpt emits the location arrow and the marked source window: the
// line before for context, the offending line with its caret marker, and
// the line after.
func (er *ErrorReporter) writeExcerpt(sb *strings.Builder, err CompilerError) {
	line := err.Position.Line
	width := gutterWidth(line)
	pad := strings.Repeat(" ", width)
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(sb, "%s %s %s:%d:%d\n", pad, dim("-->"), er.filename, line, err.Position.Column)
	fmt.Fprintf(sb, "%s %s\n", pad, dim("│"))

	numbered := func(n int, paintNum func(...interface{}) string) {
		fmt.Fprintf(sb, "%s %s %s\n", paintNum(fmt.Sprintf("%*d", width, n)), dim("│"), er.lines[n-1])
	}

	if line > 1 && line-1 <= len(er.lines) {
		numbered(line-1, dim)
	}
	if line > 0 && line <= len(er.lines) {
		numbered(line, bold)
		marker := er.createMarker(err.Position.Column, err.Length, err.Level)
		fmt.Fprintf(sb, "%s %s %s\n", pad, dim("│"), marker)
	}
	if line+1 <= len(er.lines) {
		numbered(line+1, dim)
	}
}

// writeTrailers emits the suggestion, note, and help lines beneath the
// excerpt, in that order. An unsupported construct with no help of its own
// still gets a closing note naming the boundary.
func (er *ErrorReporter) writeTrailers(sb *strings.Builder, err CompilerError) {
	cyan := color.New(color.FgCyan).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	for i, s := range err.Suggestions {
		label := "     "
		if i == 0 {
			label = cyan("help:")
		}
		fmt.Fprintf(sb, "  %s %s\n", label, s.Message)
		if s.Replacement != "" {
			for _, repl := range strings.Split(s.Replacement, "\n") {
				fmt.Fprintf(sb, "        %s\n", cyan(repl))
			}
		}
	}
	for _, note := range err.Notes {
		fmt.Fprintf(sb, "  %s %s\n", blue("note:"), note)
	}
	if err.HelpText != "" {
		fmt.Fprintf(sb, "  %s %s\n", green("help:"), err.HelpText)
	}
	if err.Kind == KindUnsupported && err.HelpText == "" {
		fmt.Fprintf(sb, "  %s this construct is recognized but outside the implemented subset\n", blue("note:"))
	}
}

// createMarker draws the underline for the flagged region: carets for
// errors, tildes for warnings, indented to a 1-based column.
func (er *ErrorReporter) createMarker(column, length int, level ErrorLevel) string {
	if length < 1 {
		length = 1
	}
	pad := column - 1
	if pad < 0 {
		pad = 0
	}
	ch, paint := "^", color.New(color.FgRed, color.Bold).SprintFunc()
	if level == Warning {
		ch, paint = "~", color.New(color.FgYellow, color.Bold).SprintFunc()
	}
	return strings.Repeat(" ", pad) + paint(strings.Repeat(ch, length))
}

// kindColor picks the header color: severity first (warnings are yellow
// whatever their kind), then kind (an invariant violation renders magenta
// so a compiler bug never reads like a user mistake).
func kindColor(kind Kind, level ErrorLevel) func(...interface{}) string {
	switch {
	case level == Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case level == Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case level == Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	case kind == KindInvariant:
		return color.New(color.FgMagenta, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

// gutterWidth is the line-number column width, floored so short files
// still align with the arrow line.
func gutterWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		w = 3
	}
	return w
}
