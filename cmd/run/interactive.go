package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	wasmbridge "github.com/portway-io/wasm-bridge"
	"github.com/portway-io/wasm-bridge/bridge"
	"github.com/portway-io/wasm-bridge/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	openStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const logRingCap = 256

// logEntry is one captured guest log record.
type logEntry struct {
	when    time.Time
	level   wasmbridge.LogLevel
	target  string
	message string
}

// logRing buffers the most recent guest log records for display. It doubles
// as the instance's diagnostics sink.
type logRing struct {
	mu      sync.Mutex
	entries []logEntry
	fatal   string
}

func (r *logRing) Panic(message string) {
	r.mu.Lock()
	r.fatal = message
	r.mu.Unlock()
}

func (r *logRing) Log(level wasmbridge.LogLevel, target, message string) {
	r.mu.Lock()
	r.entries = append(r.entries, logEntry{time.Now(), level, target, message})
	if len(r.entries) > logRingCap {
		r.entries = r.entries[len(r.entries)-logRingCap:]
	}
	r.mu.Unlock()
}

func (r *logRing) TaskEnter(name string) {}
func (r *logRing) TaskExit()             {}
func (r *logRing) ResponsesNonEmpty()    {}

func (r *logRing) snapshot() ([]logEntry, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]logEntry, len(r.entries))
	copy(out, r.entries)
	return out, r.fatal
}

type interactiveModel struct {
	cfg    *config
	eng    *engine.Engine
	inst   *engine.Instance
	ctx    context.Context
	cancel context.CancelFunc
	logs   *logRing

	filter    textinput.Model
	filtering bool

	conns   []bridge.ConnInfo
	height  int
	err     error
	stopped bool
}

type loadedMsg struct {
	eng  *engine.Engine
	inst *engine.Instance
	err  error
}

type tickMsg time.Time

type doneMsg struct {
	err error
}

func newInteractiveModel(cfg *config, logs *logRing) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "target filter"
	ti.Prompt = "/ "
	ti.Width = 30
	ctx, cancel := context.WithCancel(context.Background())
	return &interactiveModel{cfg: cfg, logs: logs, filter: ti, ctx: ctx, cancel: cancel}
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.load, tick())
}

// load instantiates the guest and starts it on its own goroutine; the TUI
// only observes through the bridge's inspection surface and the log ring.
func (m *interactiveModel) load() tea.Msg {
	ctx := m.ctx

	wasmBytes, err := os.ReadFile(m.cfg.Wasm)
	if err != nil {
		return loadedMsg{err: fmt.Errorf("read module: %w", err)}
	}

	dialer, err := newDialer(m.cfg)
	if err != nil {
		return loadedMsg{err: err}
	}

	e, err := engine.New(ctx, &engine.RuntimeConfig{MemoryLimitPages: m.cfg.MemoryLimitPages})
	if err != nil {
		return loadedMsg{err: err}
	}

	inst, err := e.Instantiate(ctx, wasmBytes, &engine.Config{
		Name:        "guest",
		Dialer:      dialer,
		Diagnostics: m.logs,
	})
	if err != nil {
		e.Close(context.Background())
		return loadedMsg{err: err}
	}

	return loadedMsg{eng: e, inst: inst}
}

// runGuest hands control to the guest and drives delivery until it stops.
func (m *interactiveModel) runGuest() tea.Msg {
	if err := m.inst.Init(m.ctx, m.cfg.GuestLogLevel); err != nil {
		return doneMsg{err: err}
	}
	return doneMsg{err: m.inst.Run(m.ctx)}
}

func (m *interactiveModel) shutdown() {
	ctx := context.Background()
	m.cancel()
	if m.inst != nil {
		m.inst.Close(ctx)
	}
	if m.eng != nil {
		m.eng.Close(ctx)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height

	case tea.KeyMsg:
		if m.filtering {
			switch msg.String() {
			case "enter", "esc":
				m.filtering = false
				m.filter.Blur()
			default:
				var cmd tea.Cmd
				m.filter, cmd = m.filter.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.shutdown()
			return m, tea.Quit
		case "/":
			m.filtering = true
			m.filter.Focus()
			return m, textinput.Blink
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.eng = msg.eng
		m.inst = msg.inst
		return m, m.runGuest

	case doneMsg:
		m.stopped = true
		if msg.err != nil && m.err == nil {
			m.err = msg.err
		}

	case tickMsg:
		if m.inst != nil {
			m.conns = m.inst.Bridge().Connections()
		}
		return m, tick()
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wasm-bridge"))
	b.WriteString(" ")
	b.WriteString(m.cfg.Wasm)
	if m.stopped {
		b.WriteString(" ")
		b.WriteString(resetStyle.Render("[stopped]"))
	}
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Connections"))
	b.WriteString("\n")
	if len(m.conns) == 0 {
		b.WriteString(helpStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, c := range m.conns {
		style := openStyle
		if c.State == bridge.StateReset {
			style = resetStyle
		}
		b.WriteString(fmt.Sprintf("  %s  %s  %d stream(s)\n",
			style.Render(fmt.Sprintf("conn %-6d", c.ID)),
			style.Render(fmt.Sprintf("%-12s %-8s", c.Kind, c.State)),
			len(c.Streams)))
		for _, s := range c.Streams {
			mark := "→"
			if !s.Outbound {
				mark = "←"
			}
			closed := ""
			if s.SendClosed {
				closed = " (send closed)"
			}
			b.WriteString(helpStyle.Render(fmt.Sprintf(
				"      %s stream %d, %d writable%s", mark, s.ID, s.Writable, closed)))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Guest log"))
	if m.filtering || m.filter.Value() != "" {
		b.WriteString("  ")
		b.WriteString(m.filter.View())
	}
	b.WriteString("\n")

	entries, fatal := m.logs.snapshot()
	needle := m.filter.Value()
	shown := 0
	limit := m.logLines()
	for i := len(entries) - 1; i >= 0 && shown < limit; i-- {
		e := entries[i]
		if needle != "" && !strings.Contains(e.target, needle) {
			continue
		}
		line := fmt.Sprintf("  %s %-5s %s: %s",
			e.when.Format("15:04:05"), e.level, e.target, e.message)
		if e.level == wasmbridge.LevelError {
			b.WriteString(errorStyle.Render(line))
		} else {
			b.WriteString(logStyle.Render(line))
		}
		b.WriteString("\n")
		shown++
	}
	if fatal != "" {
		b.WriteString(errorStyle.Render("  guest panic: " + fatal))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  error: %v", m.err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("/ filter log • q quit"))
	return b.String()
}

// logLines bounds the log pane to the space left under the connection table.
func (m *interactiveModel) logLines() int {
	if m.height == 0 {
		return 15
	}
	used := 8 + len(m.conns)*2
	if left := m.height - used; left > 3 {
		return left
	}
	return 3
}

func runInteractive(cfg *config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}

	logs := &logRing{}
	p := tea.NewProgram(newInteractiveModel(cfg, logs), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
