package tui_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/auth"
	"github.com/waabox/ghlogin/internal/domain"
	"github.com/waabox/ghlogin/internal/tui"
)

// fakeSession satisfies tui.Controller for dialog tests.
type fakeSession struct {
	state        auth.State
	loginErr     error
	loginCalls   int
	cancelCalled bool
}

func (f *fakeSession) Login(_ context.Context) (*auth.LoginHandle, error) {
	f.loginCalls++
	return nil, f.loginErr
}

func (f *fakeSession) CancelLogin() bool {
	f.cancelCalled = true
	return true
}

func (f *fakeSession) State() auth.State {
	return f.state
}

// fakeOpener records the URLs the dialog asked to open.
type fakeOpener struct {
	urls []string
	err  error
}

func (f *fakeOpener) open(url string) error {
	f.urls = append(f.urls, url)
	return f.err
}

// fakeCopier records what the dialog put on the clipboard.
type fakeCopier struct {
	texts []string
	err   error
}

func (f *fakeCopier) copy(text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

func awaiting(seq uint64, attempt string) auth.State {
	return auth.State{
		Kind:      auth.StateAwaitingUserAuthorization,
		Seq:       seq,
		AttemptID: attempt,
		Authorization: &domain.DeviceAuthorization{
			DeviceCode:      "d1",
			UserCode:        "WXYZ-1234",
			VerificationURI: "https://github.com/login/device",
			ExpiresIn:       900,
			Interval:        5,
		},
		StatusText: "Waiting for authentication...",
	}
}

func newModel(session *fakeSession, opener *fakeOpener) tui.LoginModel {
	return newModelWithCopier(session, opener, &fakeCopier{})
}

func newModelWithCopier(session *fakeSession, opener *fakeOpener, copier *fakeCopier) tui.LoginModel {
	return tui.NewLoginModel(session, opener.open, copier.copy, zerolog.Nop())
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	if msg == nil {
		return m
	}
	updated, _ := m.Update(msg)
	return updated
}

func TestLogin_InitStartsLogin(t *testing.T) {
	session := &fakeSession{}
	m := newModel(session, &fakeOpener{})

	cmd := m.Init()
	if cmd == nil {
		t.Fatal("expected Init to return a command")
	}
	msg := cmd()
	if _, ok := msg.(tui.LoginStartedMsg); !ok {
		t.Fatalf("expected LoginStartedMsg, got %T", msg)
	}
	if session.loginCalls != 1 {
		t.Errorf("expected one Login call, got %d", session.loginCalls)
	}
}

func TestLogin_ShowsCodeAndURL(t *testing.T) {
	m := newModel(&fakeSession{}, &fakeOpener{})

	updated, _ := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	view := updated.(tui.LoginModel).View()

	for _, want := range []string{"GitHub Authentication Required", "WXYZ-1234", "https://github.com/login/device", "Waiting for authentication..."} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view, got:\n%s", want, view)
		}
	}
	if strings.Contains(view, "d1") {
		t.Errorf("device code must not be rendered, got:\n%s", view)
	}
}

func TestLogin_OpensBrowserOncePerAttempt(t *testing.T) {
	opener := &fakeOpener{}
	var m tea.Model = newModel(&fakeSession{}, opener)

	m1, cmd := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	m1 = run(t, m1, cmd)

	// a status text update for the same attempt
	next := awaiting(3, "a1")
	next.StatusText = "Waiting for you to authorize in the browser..."
	m2, cmd := m1.Update(tui.StateMsg{State: next})
	run(t, m2, cmd)

	if len(opener.urls) != 1 {
		t.Fatalf("expected browser to open once, got %v", opener.urls)
	}
	if opener.urls[0] != "https://github.com/login/device" {
		t.Errorf("unexpected url: %s", opener.urls[0])
	}
}

func TestLogin_OKeyReopensBrowser(t *testing.T) {
	opener := &fakeOpener{}
	var m tea.Model = newModel(&fakeSession{}, opener)

	m1, cmd := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	m1 = run(t, m1, cmd)
	m2, cmd := m1.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	run(t, m2, cmd)

	if len(opener.urls) != 2 {
		t.Errorf("expected 2 browser opens, got %d", len(opener.urls))
	}
}

func TestLogin_BrowserFailureIsShown(t *testing.T) {
	opener := &fakeOpener{err: errors.New("xdg-open not found")}
	var m tea.Model = newModel(&fakeSession{}, opener)

	m1, cmd := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	m1 = run(t, m1, cmd)

	view := m1.(tui.LoginModel).View()
	if !strings.Contains(view, "open the page manually") {
		t.Errorf("expected manual-open hint, got:\n%s", view)
	}
}

func TestLogin_EscCancelsActiveAttempt(t *testing.T) {
	session := &fakeSession{}
	var m tea.Model = newModel(session, &fakeOpener{})

	m1, _ := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	_, cmd := m1.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected a cancel command")
	}
	cmd()

	if !session.cancelCalled {
		t.Error("expected CancelLogin to be called after esc")
	}
}

func TestLogin_CancelledAttemptClosesDialog(t *testing.T) {
	var m tea.Model = newModel(&fakeSession{}, &fakeOpener{})

	m1, _ := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	_, cmd := m1.Update(tui.StateMsg{State: auth.State{Kind: auth.StateLoggedOut, Seq: 3, AttemptID: "a1", StatusText: "Login cancelled."}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected dialog to quit after cancellation")
	}
}

func TestLogin_SuccessShowsWelcomeAndSchedulesClose(t *testing.T) {
	var m tea.Model = newModel(&fakeSession{}, &fakeOpener{})
	done := auth.State{
		Kind:       auth.StateAuthenticated,
		Seq:        5,
		Identity:   &domain.Identity{Username: "alice"},
		StatusText: "Authentication successful! Welcome, alice.",
	}

	m1, cmd := m.Update(tui.StateMsg{State: done})
	if cmd == nil {
		t.Fatal("expected close timer")
	}
	view := m1.(tui.LoginModel).View()
	if !strings.Contains(view, "Welcome, alice.") {
		t.Errorf("expected welcome text, got:\n%s", view)
	}
}

func TestLogin_FailureShowsReasonAndAllowsRetry(t *testing.T) {
	session := &fakeSession{}
	var m tea.Model = newModel(session, &fakeOpener{})
	failed := auth.State{
		Kind:       auth.StateFailed,
		Seq:        4,
		Reason:     auth.ReasonExpired,
		StatusText: "Code expired. Please try again.",
		Detail:     "device code expired",
	}

	m1, _ := m.Update(tui.StateMsg{State: failed})
	view := m1.(tui.LoginModel).View()
	if !strings.Contains(view, "Code expired. Please try again.") {
		t.Errorf("expected failure text, got:\n%s", view)
	}
	if !strings.Contains(view, "r: try again") {
		t.Errorf("expected retry hint, got:\n%s", view)
	}

	_, cmd := m1.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("expected retry command")
	}
	cmd()
	if session.loginCalls != 1 {
		t.Errorf("expected Login to be called on retry, got %d calls", session.loginCalls)
	}
}

func TestLogin_IgnoresStaleStates(t *testing.T) {
	var m tea.Model = newModel(&fakeSession{}, &fakeOpener{})

	m1, _ := m.Update(tui.StateMsg{State: awaiting(5, "a1")})
	m2, _ := m1.Update(tui.StateMsg{State: auth.State{Kind: auth.StateAwaitingDeviceCode, Seq: 4, AttemptID: "a1"}})

	if got := m2.(tui.LoginModel).State().Kind; got != auth.StateAwaitingUserAuthorization {
		t.Errorf("expected stale state to be dropped, got %s", got)
	}
}

func TestLogin_AlreadyAuthenticatedCloses(t *testing.T) {
	session := &fakeSession{
		loginErr: auth.ErrAlreadyAuthenticated,
		state:    auth.State{Kind: auth.StateAuthenticated, Seq: 1, Identity: &domain.Identity{Username: "alice"}},
	}
	var m tea.Model = newModel(session, &fakeOpener{})

	m1, cmd := m.Update(tui.LoginStartedMsg{Err: auth.ErrAlreadyAuthenticated})
	if cmd == nil {
		t.Fatal("expected close timer")
	}
	view := m1.(tui.LoginModel).View()
	if !strings.Contains(view, "alice") {
		t.Errorf("expected username in view, got:\n%s", view)
	}
}

func TestLogin_StartErrorIsShown(t *testing.T) {
	var m tea.Model = newModel(&fakeSession{}, &fakeOpener{})

	m1, _ := m.Update(tui.LoginStartedMsg{Err: errors.New("boom")})
	view := m1.(tui.LoginModel).View()
	if !strings.Contains(view, "Failed to start the authentication process.") {
		t.Errorf("expected start failure, got:\n%s", view)
	}
	if m1.(tui.LoginModel).Err() == nil {
		t.Error("expected Err to be set")
	}
	if !strings.Contains(view, "r: try again") {
		t.Errorf("expected retry hint after a start failure, got:\n%s", view)
	}
}

func TestLogin_QuitOnlyWhenIdle(t *testing.T) {
	var m tea.Model = newModel(&fakeSession{}, &fakeOpener{})

	m1, _ := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	if _, cmd := m1.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd != nil {
		t.Error("q must not close the dialog while waiting for authorization")
	}
}

func TestLogin_CKeyCopiesCode(t *testing.T) {
	copier := &fakeCopier{}
	var m tea.Model = newModelWithCopier(&fakeSession{}, &fakeOpener{}, copier)

	m1, _ := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	m2, cmd := m1.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if cmd == nil {
		t.Fatal("expected a copy command")
	}
	msg := cmd()
	if len(copier.texts) != 1 || copier.texts[0] != "WXYZ-1234" {
		t.Fatalf("expected the user code to be copied, got %v", copier.texts)
	}

	m3, cmd := m2.Update(msg)
	if cmd == nil {
		t.Error("expected a timer that hides the confirmation")
	}
	if view := m3.(tui.LoginModel).View(); !strings.Contains(view, "Copied!") {
		t.Errorf("expected copy confirmation, got:\n%s", view)
	}
	if view := m1.(tui.LoginModel).View(); !strings.Contains(view, "c: copy code") {
		t.Errorf("expected copy hint, got:\n%s", view)
	}
}

func TestLogin_CopyFailureIsShown(t *testing.T) {
	copier := &fakeCopier{err: errors.New("no terminal")}
	var m tea.Model = newModelWithCopier(&fakeSession{}, &fakeOpener{}, copier)

	m1, _ := m.Update(tui.StateMsg{State: awaiting(2, "a1")})
	_, cmd := m1.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m2, _ := m1.Update(cmd())

	view := m2.(tui.LoginModel).View()
	if strings.Contains(view, "Copied!") {
		t.Errorf("failed copy must not be confirmed, got:\n%s", view)
	}
	if !strings.Contains(view, "type it in by hand") {
		t.Errorf("expected manual-entry hint, got:\n%s", view)
	}
}

func TestLogin_CKeyIgnoredWithoutCode(t *testing.T) {
	copier := &fakeCopier{}
	var m tea.Model = newModelWithCopier(&fakeSession{}, &fakeOpener{}, copier)

	m1, _ := m.Update(tui.StateMsg{State: auth.State{Kind: auth.StateAwaitingDeviceCode, Seq: 1, AttemptID: "a1"}})
	if _, cmd := m1.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")}); cmd != nil {
		t.Error("c must do nothing before a code is known")
	}
	if len(copier.texts) != 0 {
		t.Errorf("expected nothing copied, got %v", copier.texts)
	}
}
