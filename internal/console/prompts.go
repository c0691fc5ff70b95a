package console

import (
	"bufio"
	"fmt"
	"strings"
)

// AskYesNo prompts the user with a yes/no question.
// Returns defaultYes on an empty answer.
func (p *Printer) AskYesNo(prompt string, defaultYes bool) bool {
	if defaultYes {
		_, _ = fmt.Fprintf(p.Out, "  %s [Y/n] ", prompt)
	} else {
		_, _ = fmt.Fprintf(p.Out, "  %s [y/N] ", prompt)
	}

	reader := bufio.NewReader(p.In)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
