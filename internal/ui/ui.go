// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the lachepas CLI's terminal output layer: colored headers,
// status lines, and dimmed/secondary text, degrading to plain text when
// stdout isn't a terminal or --no-color is set.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Cyan   = color.New(color.FgCyan)
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Dim    = color.New(color.Faint)
	Bold   = color.New(color.Bold)
)

// Disable turns off all color output, regardless of terminal detection.
// Called once from main() when --no-color is passed.
func Disable() {
	color.NoColor = true
}

func init() {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section title.
func Header(title string) {
	fmt.Println()
	_, _ = Bold.Println(title)
}

// SubHeader prints a secondary heading under a Header: bold like Header,
// but without the preceding blank line.
func SubHeader(title string) {
	_, _ = Bold.Println(title)
}

// Info prints an informational line prefixed with a cyan marker.
func Info(msg string) {
	_, _ = Cyan.Fprint(os.Stdout, "  -> ")
	fmt.Println(msg)
}

// Infof is Info with fmt.Sprintf formatting.
func Infof(format string, args ...any) {
	Info(fmt.Sprintf(format, args...))
}

// Warning prints a yellow warning line to stderr.
func Warning(msg string) {
	_, _ = Yellow.Fprint(os.Stderr, "warning: ")
	fmt.Fprintln(os.Stderr, msg)
}

// Warningf is Warning with fmt.Sprintf formatting.
func Warningf(format string, args ...any) {
	Warning(fmt.Sprintf(format, args...))
}

// Success prints a green confirmation line.
func Success(msg string) {
	_, _ = Green.Fprint(os.Stdout, "done: ")
	fmt.Println(msg)
}

// Successf is Success with fmt.Sprintf formatting.
func Successf(format string, args ...any) {
	Success(fmt.Sprintf(format, args...))
}

// DimText renders s in a faint style for secondary/auxiliary information.
func DimText(s string) string {
	return Dim.Sprint(s)
}

// CountText renders an integer count in bold, for summary lines.
func CountText(n int) string {
	return Bold.Sprint(n)
}

// Label renders a field label (e.g. "Project ID:") in bold.
func Label(s string) string {
	return Bold.Sprint(s)
}
