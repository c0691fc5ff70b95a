package tui

import (
	"io"
	"os"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
)

// Copier puts text on the user's clipboard.
type Copier func(text string) error

// CopyOSC52 returns a Copier that writes an OSC 52 sequence to w. Terminals
// that support it set the system clipboard, including over SSH.
func CopyOSC52(w io.Writer) Copier {
	return func(text string) error {
		seq := osc52.New(text)
		switch {
		case os.Getenv("TMUX") != "":
			seq = seq.Tmux()
		case strings.HasPrefix(os.Getenv("TERM"), "screen"):
			seq = seq.Screen()
		}
		_, err := seq.WriteTo(w)
		return err
	}
}
