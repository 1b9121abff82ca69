package ui

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Banner printed at startup
const Banner = `
  __  __ ___    ___ _ __ __ ___      _| | ___ _ __
  \ \/ // _ \  / __| '__/ _' \ \ /\ / / |/ _ \ '__|
   >  <| (_) || (__| | | (_| |\ V  V /| |  __/ |
  /_/\_\\__, | \___|_|  \__,_| \_/\_/ |_|\___|_|
           |_|        snowball crawler
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// Output is where the Print helpers write. Tests swap it for a buffer.
var Output io.Writer = os.Stdout

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// DisableColor makes every color function return its input unchanged.
func DisableColor() {
	plain := func(text string) string { return text }
	Cyan, Yellow, Red, Green, Magenta, Dim = plain, plain, plain, plain, plain, plain
}

// PrintBanner prints the banner in cyan
func PrintBanner() {
	fmt.Fprint(Output, Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Output, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(Output, Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	fmt.Fprintf(Output, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Output, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output, Yellow(msg))
	}
}

// RunSummary is what PrintSummary shows at the end of a crawl.
type RunSummary struct {
	RunID    string
	Mode     string
	Status   string
	Posts    int
	Comments int
	Creators int
	Failures int
	Duration time.Duration
	Report   string
}

// PrintSummary prints the end-of-run summary.
func PrintSummary(s RunSummary) {
	fmt.Fprintln(Output, Magenta("── crawl finished ──"))
	PrintInfo("Run", s.RunID)
	PrintInfo("Mode", s.Mode)
	PrintInfo("Status", s.Status)
	PrintInfo("Posts", fmt.Sprint(s.Posts))
	PrintInfo("Comments", fmt.Sprint(s.Comments))
	PrintInfo("Creators", fmt.Sprint(s.Creators))
	if s.Failures > 0 {
		PrintWarning("Failures", s.Failures)
	}
	PrintInfo("Duration", s.Duration.Round(time.Second).String())
	if s.Report != "" {
		fmt.Fprintln(Output, Dim("report: "+s.Report))
	}
}
