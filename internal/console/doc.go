// Package console prints login progress and prompts on a plain terminal,
// for `ghlogin login --no-tui` and the other non-interactive commands.
package console
