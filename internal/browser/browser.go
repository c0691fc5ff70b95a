// Package browser opens URLs in the user's default browser.
package browser

import (
	"errors"
	"net/url"
	"os/exec"
	"runtime"
)

// Opener opens a URL. The terminal dialog takes one so tests can record calls.
type Opener func(rawURL string) error

// ErrUnsupportedScheme is returned for anything other than http and https.
var ErrUnsupportedScheme = errors.New("only http and https URLs can be opened")

// Open starts the platform's URL handler for rawURL and does not wait for it.
func Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrUnsupportedScheme
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	// reap the child so it does not linger as a zombie
	go cmd.Wait()
	return nil
}
