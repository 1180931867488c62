// Package login is the sign-in form: server address and session token.
package login

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/blogbell/internal/credential"
	"github.com/nhle/blogbell/internal/theme"
)

// SubmittedMsg carries the values of a completed form.
type SubmittedMsg struct {
	BaseURL string
	Token   string
}

// CancelledMsg is sent when the form is aborted.
type CancelledMsg struct{}

// Values is the data the form edits.
type Values struct {
	BaseURL string
	Token   string
}

// NewForm builds the sign-in form bound to v. It is shared by the TUI
// and the standalone login command.
func NewForm(v *Values, now func() time.Time) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server").
				Description("Notification server address").
				Placeholder("http://localhost:8080").
				Value(&v.BaseURL).
				Validate(ValidateURL),
			huh.NewInput().
				Title("Session token").
				Description("Bearer token issued by the blog").
				EchoMode(huh.EchoModePassword).
				Value(&v.Token).
				Validate(func(s string) error {
					return ValidateToken(s, now())
				}),
		),
	)
}

// ValidateURL accepts absolute http(s) URLs.
func ValidateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return errors.New("enter a full URL such as http://localhost:8080")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

// ValidateToken rejects empty and already expired tokens.
func ValidateToken(s string, now time.Time) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("token is required")
	}
	if credential.Expired(s, now) {
		return errors.New("token is malformed or expired")
	}
	return nil
}

// Model embeds the form in the application.
type Model struct {
	form   *huh.Form
	values *Values
	reason string
	width  int
	height int
}

// New creates a form prefilled with baseURL. reason, when set, explains
// why sign-in is needed.
func New(baseURL, reason string, width, height int) Model {
	v := &Values{BaseURL: baseURL}
	m := Model{
		values: v,
		reason: reason,
		width:  width,
		height: height,
	}
	m.form = NewForm(v, time.Now).WithWidth(m.formWidth())
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update forwards to the form and reports completion.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		values := SubmittedMsg{
			BaseURL: strings.TrimRight(strings.TrimSpace(m.values.BaseURL), "/"),
			Token:   strings.TrimSpace(m.values.Token),
		}
		return m, func() tea.Msg { return values }
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelledMsg{} }
	}
	return m, cmd
}

// View renders the form inside a panel.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Sign in")}
	if m.reason != "" {
		parts = append(parts, theme.DimmedStyle.Render(m.reason), "")
	}
	parts = append(parts, m.form.View())

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	return max(min(m.width-8, 72), 20)
}
