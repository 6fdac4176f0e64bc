// Package tui implements the operator console: a Bubble Tea program that
// connects to a respkv server, lets the operator type commands over the
// real wire protocol, and optionally watches the live activity feed
// served by internal/web.
package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashgrove/respkv/internal/activity"
	"github.com/ashgrove/respkv/internal/clipboard"
	"github.com/ashgrove/respkv/internal/highlight"
	"github.com/ashgrove/respkv/resp"
)

type viewMode int

const (
	viewConsole viewMode = iota
	viewActivity
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	hotStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	selectedMark = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
)

// transcriptLine is one rendered request or reply in the console view.
type transcriptLine struct {
	text  string
	isErr bool
}

// Model is the program's Bubble Tea state.
type Model struct {
	conn net.Conn
	dec  *resp.Decoder

	eventCh <-chan activity.Event

	mode       viewMode
	input      string
	transcript []transcriptLine
	events     []activity.Event
	selected   int

	width, height int
	err           error
	quitting      bool
}

type replyMsg struct{ v resp.Value }
type connErrMsg struct{ err error }
type eventMsg struct{ e activity.Event }

// New returns a Model driving conn, optionally also consuming events from
// eventCh (nil disables the activity view's live feed).
func New(conn net.Conn, eventCh <-chan activity.Event) Model {
	return Model{
		conn:    conn,
		dec:     resp.NewDecoder(),
		eventCh: eventCh,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.readReply}
	if m.eventCh != nil {
		cmds = append(cmds, m.readEvent)
	}
	return tea.Batch(cmds...)
}

// readReply blocks on the connection until a full reply frame has been
// decoded, mirroring the console's dogfood-the-codec requirement.
func (m Model) readReply() tea.Msg {
	buf := make([]byte, 4096)
	for {
		v, n, err := m.dec.Decode()
		if err == nil {
			m.dec.Consume(n)
			return replyMsg{v: v}
		}
		rn, rerr := m.conn.Read(buf)
		if rn > 0 {
			m.dec.Feed(buf[:rn])
		}
		if rerr != nil {
			return connErrMsg{err: rerr}
		}
	}
}

func (m Model) readEvent() tea.Msg {
	e, ok := <-m.eventCh
	if !ok {
		return nil
	}
	return eventMsg{e: e}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		m.transcript = append(m.transcript, transcriptLine{
			text:  renderReply(msg.v),
			isErr: msg.v.Kind == resp.Error,
		})
		return m, m.readReply

	case connErrMsg:
		m.err = msg.err
		m.quitting = true
		return m, tea.Quit

	case eventMsg:
		m.events = append(m.events, msg.e)
		return m, m.readEvent
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		m.conn.Close()
		return m, tea.Quit

	case tea.KeyTab:
		if m.mode == viewConsole {
			m.mode = viewActivity
		} else {
			m.mode = viewConsole
		}
		return m, nil

	case tea.KeyEnter:
		if m.mode != viewConsole || strings.TrimSpace(m.input) == "" {
			return m, nil
		}
		return m.submit()

	case tea.KeyBackspace:
		if m.mode == viewConsole && len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil

	case tea.KeyUp:
		if m.mode == viewActivity && m.selected > 0 {
			m.selected--
		}
		return m, nil

	case tea.KeyDown:
		if m.mode == viewActivity && m.selected < len(m.events)-1 {
			m.selected++
		}
		return m, nil

	case tea.KeyRunes:
		if m.mode == viewConsole {
			m.input += string(msg.Runes)
			return m, nil
		}
		if string(msg.Runes) == "c" {
			return m, m.copySelected()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input)
	m.input = ""

	fields := strings.Fields(line)
	elems := make([]resp.Value, len(fields))
	for i, f := range fields {
		elems[i] = resp.NewBulkStringFromString(f)
	}
	m.transcript = append(m.transcript, transcriptLine{text: "> " + highlight.Command(line)})

	if _, err := m.conn.Write(resp.Encode(resp.NewArray(elems))); err != nil {
		m.transcript = append(m.transcript, transcriptLine{text: err.Error(), isErr: true})
		return m, nil
	}
	return m, nil
}

func (m Model) copySelected() tea.Cmd {
	return func() tea.Msg {
		if m.selected < 0 || m.selected >= len(m.events) {
			return nil
		}
		e := m.events[m.selected]
		_ = clipboard.Copy(context.Background(), fmt.Sprintf("%s %s", e.Command, e.Key))
		return nil
	}
}

func renderReply(v resp.Value) string {
	switch v.Kind {
	case resp.SimpleString:
		return replyStyle.Render("+" + v.Str)
	case resp.Error:
		return errStyle.Render("-" + v.Str)
	case resp.Integer:
		return replyStyle.Render(fmt.Sprintf(":%d", v.Int))
	case resp.BulkString:
		if v.IsNull() {
			return faintStyle.Render("(nil)")
		}
		return replyStyle.Render(string(v.Bulk))
	case resp.Array:
		if v.IsNull() {
			return faintStyle.Render("(nil)")
		}
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = renderReply(e)
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func (m Model) View() string {
	if m.quitting {
		if m.err != nil {
			return errStyle.Render(m.err.Error()) + "\n"
		}
		return ""
	}

	switch m.mode {
	case viewActivity:
		return m.viewActivity()
	default:
		return m.viewConsole()
	}
}

func (m Model) viewConsole() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("respkv console") + faintStyle.Render("  (tab: activity, ctrl+c: quit)") + "\n\n")

	start := 0
	if len(m.transcript) > 20 {
		start = len(m.transcript) - 20
	}
	for _, line := range m.transcript[start:] {
		if line.isErr {
			b.WriteString(errStyle.Render(line.text) + "\n")
		} else {
			b.WriteString(line.text + "\n")
		}
	}

	b.WriteString("\n" + promptStyle.Render("> ") + m.input + "█")
	return b.String()
}

func (m Model) viewActivity() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("respkv activity") + faintStyle.Render("  (tab: console, c: copy, ctrl+c: quit)") + "\n\n")

	start := 0
	if len(m.events) > 30 {
		start = len(m.events) - 30
	}
	for i, e := range m.events[start:] {
		idx := start + i
		marker := "  "
		if idx == m.selected {
			marker = selectedMark.Render("> ")
		}
		line := fmt.Sprintf("#%d %s %s", e.Seq, e.Command, e.Key)
		if e.Err != "" {
			line += errStyle.Render(" (" + e.Err + ")")
		}
		if e.HotKey {
			line += " " + hotStyle.Render("HOT")
		}
		b.WriteString(marker + line + "\n")
	}
	return b.String()
}

// SubscribeEvents connects to addr's SSE activity feed and returns a
// channel of decoded events; the channel is closed if the stream ends.
func SubscribeEvents(ctx context.Context, addr string) (<-chan activity.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/events", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}

	out := make(chan activity.Event)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var e activity.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
