package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-isolate/config"
	"github.com/wippyai/wasm-isolate/module"
	"github.com/wippyai/wasm-isolate/runtime"
	"github.com/wippyai/wasm-isolate/trace"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxHistory bounds the load results kept on screen.
const maxHistory = 8

type interactiveModel struct {
	err     error
	rt      *runtime.Runtime
	cfg     *config.Config
	guest   string
	input   textinput.Model
	history []loadResult
	modules []*module.Module
	loading bool
}

type loadResult struct {
	err   error
	name  string
	info  string
	spans []trace.Span
	took  time.Duration
}

type readyMsg struct {
	err error
	rt  *runtime.Runtime
}

type loadedMsg loadResult

func newInteractiveModel(cfg *config.Config, guest string) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "acme.app.Sample"
	ti.Prompt = "resolve: "
	ti.Width = 48
	ti.Focus()
	return &interactiveModel{cfg: cfg, guest: guest, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.start)
}

func (m *interactiveModel) start() tea.Msg {
	rt, err := newRuntime(context.Background(), m.cfg, m.guest)
	return readyMsg{rt: rt, err: err}
}

// load runs on a command goroutine as its own root unit of work. The
// goroutine's trace state is cleared before it returns to the pool.
func (m *interactiveModel) load(name string) tea.Cmd {
	rt := m.rt
	return func() tea.Msg {
		res := loadResult{name: name}
		rt.Registry().Run(func() {
			root, started := rt.Tracer().StartRoot("interactive " + name)
			if started || rt.Registry().IsCurrentRootSpanDisabled() {
				defer rt.Tracer().EndRoot()
			}

			start := time.Now()
			mod, err := rt.Load(context.Background(), name)
			res.took = time.Since(start)
			res.err = err
			if err == nil {
				res.info = describe(mod)
			}
			if root != nil {
				res.spans = root.Spans()
			}
		})
		return loadedMsg(res)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.rt != nil {
				m.rt.Close(context.Background())
			}
			return m, tea.Quit

		case "enter":
			name := strings.TrimSpace(m.input.Value())
			if name == "" || m.rt == nil || m.loading {
				return m, nil
			}
			m.loading = true
			m.input.SetValue("")
			return m, m.load(name)
		}

	case readyMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.modules = m.rt.Modules()

	case loadedMsg:
		m.loading = false
		m.history = append([]loadResult{loadResult(msg)}, m.history...)
		if len(m.history) > maxHistory {
			m.history = m.history[:maxHistory]
		}
		m.modules = m.rt.Modules()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
	}
	if m.rt == nil {
		return "Starting runtime..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Isolated Loader"))
	b.WriteString(" ")
	b.WriteString(m.rt.Loader().Name())
	b.WriteString("\n\n")

	b.WriteString(m.input.View())
	if m.loading {
		b.WriteString(helpStyle.Render("  resolving..."))
	}
	b.WriteString("\n\n")

	for _, r := range m.history {
		b.WriteString(nameStyle.Render(r.name))
		b.WriteString(" ")
		if r.err != nil {
			b.WriteString(errorStyle.Render(r.err.Error()))
		} else {
			b.WriteString(infoStyle.Render(fmt.Sprintf("%s in %s", r.info, r.took)))
		}
		b.WriteString("\n")
		for _, s := range r.spans {
			b.WriteString(helpStyle.Render(fmt.Sprintf("    %s%s %s", strings.Repeat("  ", s.Depth), s.Name, s.Duration)))
			b.WriteString("\n")
		}
	}

	b.WriteString(fmt.Sprintf("\nModules (%d, %d transform calls):\n", len(m.modules), m.rt.Transformed()))
	for _, mod := range m.modules {
		b.WriteString("  ")
		b.WriteString(nameStyle.Render(mod.Name))
		b.WriteString(" ")
		b.WriteString(infoStyle.Render(mod.Kind.String()))
		b.WriteString("\n")
	}
	if pkgs := m.rt.Loader().Packages(); len(pkgs) > 0 {
		b.WriteString(fmt.Sprintf("\nPackages: %s\n", strings.Join(pkgs, ", ")))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter resolve • esc quit"))
	return b.String()
}

func runInteractive(cfg *config.Config, guest string) error {
	p := tea.NewProgram(newInteractiveModel(cfg, guest), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
