package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"     _    _                    ", "#38bdf8"},
	{"    / \\  | |__  _   _ ___ ___ ", "#22d3ee"},
	{"   / _ \\ | '_ \\| | | / __/ __|", "#2dd4bf"},
	{"  / ___ \\| |_) | |_| \\__ \\__ \\", "#34d399"},
	{" /_/   \\_\\_.__/ \\__, |___/___/", "#4ade80"},
	{"                |___/          ", "#a3e635"},
}

// PrintBanner writes the Abyss banner and version to w, coloured to the
// terminal's profile.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  topology optimization workbench v"+version).Faint())
	fmt.Fprintln(w)
}
