// Package ui prints colored progress output for the import CLI.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
)

// Header prints a banner for the start of an import run.
func Header(text string) {
	rule := strings.Repeat("=", headerWidth)
	green.Printf("\n%s\n", rule)
	green.Printf("%-*s\n", headerWidth, center(text, headerWidth))
	green.Printf("%s\n\n", rule)
}

// Step marks progress through the numbered import phases.
func Step(num, total int, text string) {
	yellow.Printf("[%d/%d] %s\n", num, total, text)
}

// Success prints an indented green result line.
func Success(format string, args ...any) {
	green.Printf("  → "+format+"\n", args...)
}

// Info prints an indented uncolored result line.
func Info(format string, args ...any) {
	fmt.Printf("  → "+format+"\n", args...)
}

// Warning prints an indented warning line.
func Warning(format string, args ...any) {
	yellow.Printf("  ⚠ "+format+"\n", args...)
}

// Error prints an error line.
func Error(format string, args ...any) {
	red.Printf("Error: "+format+"\n", args...)
}

func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	pad := (width - len(text)) / 2
	return strings.Repeat(" ", pad) + text
}
