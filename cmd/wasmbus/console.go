package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasmbus/link"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	ifaceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	destStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Pick linked interfaces and invoke them interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("console needs an interactive terminal; use `wasmbus invoke` instead")
			}
			return opts.withEnv(cmd.Context(), func(e *env) error {
				p := tea.NewProgram(newConsoleModel(cmd.Context(), e), tea.WithAltScreen())
				_, err := p.Run()
				return err
			})
		},
	}
}

type consoleState int

const (
	stateSelectIface consoleState = iota
	stateInputCall
	stateShowResult
)

type ifaceEntry struct {
	link     string
	instance string
	dest     string
	runs     string
}

type consoleModel struct {
	ctx      context.Context
	err      error
	env      *env
	result   string
	entries  []ifaceEntry
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    consoleState
}

type callResultMsg struct {
	err    error
	result string
}

func newConsoleModel(ctx context.Context, e *env) *consoleModel {
	m := &consoleModel{ctx: ctx, env: e, state: stateSelectIface}
	for _, row := range linkRows(e) {
		m.entries = append(m.entries, ifaceEntry{link: row[0], instance: row[1], dest: row[2], runs: row[3]})
	}
	return m
}

func (m *consoleModel) Init() tea.Cmd { return nil }

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputCall {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectIface && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectIface && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectIface:
				if len(m.entries) == 0 {
					return m, nil
				}
				m.prepareInputs()
				m.state = stateInputCall
				return m, nil

			case stateInputCall:
				return m, m.call

			case stateShowResult:
				m.reset()
				return m, nil
			}

		case "tab":
			if m.state == stateInputCall {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
				return m, nil
			}

		case "esc":
			if m.state != stateSelectIface {
				m.reset()
				return m, nil
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInputCall {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *consoleModel) reset() {
	m.state = stateSelectIface
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *consoleModel) prepareInputs() {
	fn := textinput.New()
	fn.Prompt = "function: "
	fn.Placeholder = "get"
	fn.Width = 40
	fn.Focus()

	data := textinput.New()
	data.Prompt = "params: "
	data.Placeholder = "raw parameter bytes"
	data.Width = 40

	m.inputs = []textinput.Model{fn, data}
	m.focusIdx = 0
}

func (m *consoleModel) call() tea.Msg {
	entry := m.entries[m.selected]
	function := strings.TrimSpace(m.inputs[0].Value())
	if function == "" {
		return callResultMsg{err: errors.New("function name is required")}
	}

	if err := m.env.handler.SetLinkName(entry.link, interfacesOf(entry.instance)...); err != nil {
		return callResultMsg{err: err}
	}

	var out bytes.Buffer
	if err := invoke(m.ctx, m.env, link.TargetNone, entry.instance, function, []byte(m.inputs[1].Value()), &out); err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: fmt.Sprintf("%q", out.Bytes())}
}

// interfacesOf returns the parsed interface, or nothing when instance is
// not a well-formed interface name.
func interfacesOf(instance string) []link.Interface {
	iface, err := link.ParseInterface(instance)
	if err != nil {
		return nil
	}
	return []link.Interface{iface}
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmbus"))
	b.WriteString(" ")
	b.WriteString(m.env.file.ComponentID)
	b.WriteString(" @ ")
	b.WriteString(m.env.file.Lattice)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectIface:
		if len(m.entries) == 0 {
			b.WriteString("No links configured.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			return b.String()
		}
		b.WriteString("Select an interface to invoke:\n\n")
		for i, e := range m.entries {
			line := m.formatEntry(e)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputCall:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Invoking %s\n\n", ifaceStyle.Render(e.instance)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter invoke • esc back"))

	case stateShowResult:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Result from %s:\n\n", destStyle.Render(e.dest)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *consoleModel) formatEntry(e ifaceEntry) string {
	return fmt.Sprintf("[%s] %s -> %s (%s)", e.link, ifaceStyle.Render(e.instance), destStyle.Render(e.dest), e.runs)
}
