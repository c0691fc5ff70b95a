package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/auth"
	"github.com/waabox/ghlogin/internal/browser"
	"github.com/waabox/ghlogin/internal/domain"
)

const (
	// DefaultCloseAfter is how long the dialog stays up after a successful login.
	DefaultCloseAfter = 2 * time.Second
	// copiedFor is how long "Copied!" stays next to the code.
	copiedFor = 2 * time.Second
)

// Controller is the part of auth.Session the dialog drives.
type Controller interface {
	Login(ctx context.Context) (*auth.LoginHandle, error)
	CancelLogin() bool
	State() auth.State
}

// StateMsg carries a published authenticator state into the program.
// It is exported so that tests can inject it directly into LoginModel.Update.
type StateMsg struct {
	State auth.State
}

// LoginStartedMsg is sent when the login request returned.
type LoginStartedMsg struct {
	Err error
}

// BrowserOpenedMsg is sent after trying to open the verification URL.
type BrowserOpenedMsg struct {
	Err error
}

// CodeCopiedMsg is sent after trying to copy the user code.
type CodeCopiedMsg struct {
	Err error
}

// closeMsg is sent by the timer started after a successful login.
type closeMsg struct{}

// copyExpiredMsg hides "Copied!" unless a newer copy happened since.
type copyExpiredMsg struct {
	gen int
}

// LoginModel is the Bubbletea model for the GitHub login dialog.
type LoginModel struct {
	session    Controller
	open       browser.Opener
	copy       Copier
	closeAfter time.Duration
	log        zerolog.Logger

	state      auth.State
	openedFor  string // attempt whose URL was already opened
	browserErr error
	copied     bool
	copyGen    int
	copyErr    error
	err        error
	closing    bool
	width      int
}

// NewLoginModel creates the dialog model. open is called with the
// verification URL once per attempt, and again on 'o'. copier receives the
// user code on 'c'.
func NewLoginModel(session Controller, open browser.Opener, copier Copier, log zerolog.Logger) LoginModel {
	return LoginModel{
		session:    session,
		open:       open,
		copy:       copier,
		closeAfter: DefaultCloseAfter,
		log:        log,
		state:      session.State(),
	}
}

// State returns the last state the dialog rendered.
func (m LoginModel) State() auth.State {
	return m.state
}

// Err returns the error that kept the login from starting, if any.
func (m LoginModel) Err() error {
	return m.err
}

// Init starts the login attempt.
func (m LoginModel) Init() tea.Cmd {
	return m.startLogin()
}

func (m LoginModel) startLogin() tea.Cmd {
	return func() tea.Msg {
		_, err := m.session.Login(context.Background())
		return LoginStartedMsg{Err: err}
	}
}

func (m LoginModel) cancelLogin() tea.Cmd {
	return func() tea.Msg {
		m.session.CancelLogin()
		return nil
	}
}

func (m LoginModel) openBrowser(uri string) tea.Cmd {
	return func() tea.Msg {
		return BrowserOpenedMsg{Err: m.open(uri)}
	}
}

func (m LoginModel) copyCode(code string) tea.Cmd {
	return func() tea.Msg {
		return CodeCopiedMsg{Err: m.copy(code)}
	}
}

func closeAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return closeMsg{}
	})
}

// Update handles state changes and key events.
func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case LoginStartedMsg:
		switch {
		case msg.Err == nil:
			m.err = nil
		case errors.Is(msg.Err, auth.ErrAlreadyAuthenticated):
			m.state = m.session.State()
			m.closing = true
			return m, closeAfter(m.closeAfter)
		case errors.Is(msg.Err, domain.ErrAlreadyInProgress):
			// another surface started it; follow along
			m.state = m.session.State()
			return m.onState(false)
		default:
			m.err = msg.Err
		}

	case StateMsg:
		if m.state.Seq != 0 && msg.State.Seq <= m.state.Seq {
			return m, nil
		}
		wasActive := m.state.Active()
		m.state = msg.State
		return m.onState(wasActive)

	case BrowserOpenedMsg:
		m.browserErr = msg.Err
		if msg.Err != nil {
			m.log.Warn().Err(msg.Err).Msg("could not open browser")
		}

	case CodeCopiedMsg:
		m.copyErr = msg.Err
		m.copied = msg.Err == nil
		if msg.Err != nil {
			m.log.Warn().Err(msg.Err).Msg("could not copy the code")
			return m, nil
		}
		m.copyGen++
		gen := m.copyGen
		return m, tea.Tick(copiedFor, func(_ time.Time) tea.Msg {
			return copyExpiredMsg{gen: gen}
		})

	case copyExpiredMsg:
		if msg.gen == m.copyGen {
			m.copied = false
		}

	case closeMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.state.Active() {
				return m, tea.Sequence(m.cancelLogin(), tea.Quit)
			}
			return m, tea.Quit
		case "esc":
			if m.state.Active() {
				// the cancelled attempt publishes logged_out, which closes the dialog
				return m, m.cancelLogin()
			}
			return m, tea.Quit
		case "q", "enter":
			if !m.state.Active() {
				return m, tea.Quit
			}
		case "o":
			if uri := m.verificationURI(); uri != "" {
				return m, m.openBrowser(uri)
			}
		case "c":
			if code := m.userCode(); code != "" {
				return m, m.copyCode(code)
			}
		case "r":
			if m.state.Kind == auth.StateFailed || m.err != nil {
				m.err = nil
				m.openedFor = ""
				m.copied, m.copyErr = false, nil
				return m, m.startLogin()
			}
		}
	}
	return m, nil
}

// onState reacts to a newly rendered state.
func (m LoginModel) onState(wasActive bool) (tea.Model, tea.Cmd) {
	switch m.state.Kind {
	case auth.StateAwaitingUserAuthorization:
		if m.openedFor != m.state.AttemptID {
			m.openedFor = m.state.AttemptID
			if uri := m.verificationURI(); uri != "" {
				return m, m.openBrowser(uri)
			}
		}
	case auth.StateAuthenticated:
		if !m.closing {
			m.closing = true
			return m, closeAfter(m.closeAfter)
		}
	case auth.StateLoggedOut:
		if wasActive || m.state.AttemptID != "" {
			// the attempt was cancelled or logged out elsewhere
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m LoginModel) userCode() string {
	if m.state.Kind != auth.StateAwaitingUserAuthorization || m.state.Authorization == nil {
		return ""
	}
	return m.state.Authorization.UserCode
}

func (m LoginModel) verificationURI() string {
	if m.state.Kind != auth.StateAwaitingUserAuthorization || m.state.Authorization == nil {
		return ""
	}
	return m.state.Authorization.VerificationURI
}

// View renders the dialog.
func (m LoginModel) View() string {
	var body strings.Builder
	body.WriteString(titleStyle.Render("GitHub Authentication Required"))
	body.WriteString("\n\n")

	switch {
	case m.err != nil:
		body.WriteString(errorStyle.Render("Failed to start the authentication process."))
		body.WriteString("\n" + m.err.Error() + "\n")
	case m.state.Kind == auth.StateAwaitingUserAuthorization && m.state.Authorization != nil:
		authz := m.state.Authorization
		body.WriteString("1. Open this page in your browser:\n\n")
		body.WriteString("   " + urlStyle.Render(authz.VerificationURI) + "\n\n")
		body.WriteString("2. Enter this code:\n\n")
		body.WriteString(lipgloss.NewStyle().MarginLeft(3).Render(codeStyle.Render(authz.UserCode)))
		if m.copied {
			body.WriteString("  " + successStyle.Render("Copied!"))
		}
		body.WriteString("\n\n")
		body.WriteString(mutedStyle.Render(m.state.StatusText))
		if m.browserErr != nil {
			body.WriteString("\n" + mutedStyle.Render("Could not open a browser, open the page manually."))
		}
		if m.copyErr != nil {
			body.WriteString("\n" + mutedStyle.Render("Could not copy the code, type it in by hand."))
		}
		body.WriteString("\n")
	case m.state.Kind == auth.StateAuthenticated:
		body.WriteString(successStyle.Render(m.successText()))
		body.WriteString("\n")
		if m.state.StoreErr != "" {
			body.WriteString(mutedStyle.Render("The token could not be saved; you will be asked again next time."))
			body.WriteString("\n")
		}
	case m.state.Kind == auth.StateFailed:
		body.WriteString(errorStyle.Render(m.state.StatusText))
		body.WriteString("\n")
		if m.state.Detail != "" {
			body.WriteString(mutedStyle.Render(m.state.Detail))
			body.WriteString("\n")
		}
	default:
		text := m.state.StatusText
		if text == "" {
			text = "Requesting a device code from GitHub..."
		}
		body.WriteString(mutedStyle.Render(text))
		body.WriteString("\n")
	}

	panel := panelStyle
	if m.width > 0 && m.width < 80 {
		panel = panel.Width(m.width - 4)
	}
	return panel.Render(body.String()) + "\n" + helpStyle.Render(m.help()) + "\n"
}

func (m LoginModel) successText() string {
	if m.state.StatusText != "" {
		return m.state.StatusText
	}
	if m.state.Identity != nil {
		return fmt.Sprintf("Authentication successful! Welcome, %s.", m.state.Identity.Username)
	}
	return "Authentication successful!"
}

func (m LoginModel) help() string {
	switch {
	case m.state.Kind == auth.StateAwaitingUserAuthorization:
		return "o: open browser   c: copy code   esc: cancel"
	case m.state.Active():
		return "esc: cancel"
	case m.state.Kind == auth.StateFailed || m.err != nil:
		return "r: try again   q: quit"
	default:
		return "q: quit"
	}
}

// Run shows the dialog until the login finishes, is cancelled or the user quits.
// It returns the last state the dialog saw.
func Run(session *auth.Session, log zerolog.Logger) (auth.State, error) {
	p := tea.NewProgram(NewLoginModel(session, browser.Open, CopyOSC52(os.Stderr), log), tea.WithAltScreen())
	unsubscribe := session.Subscribe(auth.SinkFunc(func(s auth.State) {
		p.Send(StateMsg{State: s})
	}))
	defer unsubscribe()

	final, err := p.Run()
	if err != nil {
		return session.State(), fmt.Errorf("running login dialog: %w", err)
	}
	m := final.(LoginModel)
	return m.State(), m.Err()
}
