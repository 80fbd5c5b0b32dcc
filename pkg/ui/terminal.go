// Package ui formats run reports, session statistics and messages for the terminal.
package ui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔════════════════════════════════════════════════╗
    ║ ██╗ ██████╗ ███████╗███████╗████████╗ ██████╗██╗  ██╗ ║
    ║ ██║██╔════╝ ██╔════╝██╔════╝╚══██╔══╝██╔════╝██║  ██║ ║
    ║ ██║██║  ███╗█████╗  █████╗     ██║   ██║     ███████║ ║
    ║ ██║██║   ██║██╔══╝  ██╔══╝     ██║   ██║     ██╔══██║ ║
    ║ ██║╚██████╔╝██║     ███████╗   ██║   ╚██████╗██║  ██║ ║
    ║ ╚═╝ ╚═════╝ ╚═╝     ╚══════╝   ╚═╝    ╚═════╝╚═╝  ╚═╝ ║
    ║      STORIES & REELS LINK EXTRACTION UTILITY       ║
    ╚════════════════════════════════════════════════╝
`

const (
	codeCyan    = "\033[36m%s\033[0m"
	codeYellow  = "\033[33m%s\033[0m"
	codeRed     = "\033[31m%s\033[0m"
	codeGreen   = "\033[32m%s\033[0m"
	codeMagenta = "\033[35m%s\033[0m"
	codeDim     = "\033[2m%s\033[0m"
)

// IsTerminal reports whether w is a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Printer writes colored output to a writer. Colors are only used when the
// writer is a terminal and colors were not disabled.
type Printer struct {
	out   io.Writer
	color bool

	Cyan    func(string) string
	Yellow  func(string) string
	Red     func(string) string
	Green   func(string) string
	Magenta func(string) string
	Dim     func(string) string
}

// NewPrinter creates a Printer for out
func NewPrinter(out io.Writer, noColor bool) *Printer {
	p := &Printer{out: out, color: !noColor && IsTerminal(out)}
	p.Cyan = p.colorize(codeCyan)
	p.Yellow = p.colorize(codeYellow)
	p.Red = p.colorize(codeRed)
	p.Green = p.colorize(codeGreen)
	p.Magenta = p.colorize(codeMagenta)
	p.Dim = p.colorize(codeDim)
	return p
}

// colorize returns a function that wraps text with ANSI color codes
func (p *Printer) colorize(colorString string) func(string) string {
	return func(text string) string {
		if !p.color {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// Writer returns the underlying writer
func (p *Printer) Writer() io.Writer { return p.out }

// Color reports whether ANSI colors are emitted
func (p *Printer) Color() bool { return p.color }

// Logo prints the ASCII logo
func (p *Printer) Logo() {
	fmt.Fprint(p.out, p.Cyan(ASCIILogo))
}

// Error prints an error message in red
func (p *Printer) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(p.out, p.Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(p.out, p.Red(msg))
	}
}

// Success prints a success message in green
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, p.Green(msg))
}

// Info prints a label/value pair
func (p *Printer) Info(label string, value string) {
	fmt.Fprintf(p.out, "%s: %s\n", p.Cyan(label), p.Yellow(value))
}

// Warning prints a warning message in yellow
func (p *Printer) Warning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(p.out, p.Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(p.out, p.Yellow(msg))
	}
}

// Highlight prints a highlighted message in magenta
func (p *Printer) Highlight(msg string) {
	fmt.Fprintln(p.out, p.Magenta(msg))
}
