// Package tui provides the BubbleTea-based live status view.
package tui

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmylchreest/autoduck/internal/adapter/output"
	"github.com/jmylchreest/autoduck/internal/config"
	"github.com/jmylchreest/autoduck/internal/core"
	"github.com/jmylchreest/autoduck/internal/daemon"
	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/model"
)

// DefaultInterval is how often the view polls the daemon.
const DefaultInterval = 500 * time.Millisecond

// requestTimeout bounds every call to the daemon.
const requestTimeout = 2 * time.Second

// headerHeight is the number of lines above the session list.
const headerHeight = 3

// Mode represents the current UI mode.
type Mode int

const (
	ModeList Mode = iota
	ModeHelp
)

// Source is the daemon surface the view drives. *dbus.Client satisfies it.
type Source interface {
	State(ctx context.Context) (daemon.State, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
}

// AppEditor persists a role for one identity. RoleUnclassified removes the
// identity from every list.
type AppEditor func(role model.Role, identity string) error

// ConfigEditor returns an AppEditor that rewrites the config file at path.
func ConfigEditor(path string) AppEditor {
	return func(role model.Role, identity string) error {
		return config.Edit(path, func(c *config.Config) error {
			c.Apps.RemoveApp(identity)
			if role == model.RoleUnclassified {
				return nil
			}
			return c.Apps.AddApp(role, identity)
		})
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	badgeStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0"))

	badgeColors = map[string]lipgloss.Color{
		output.ClassNormal:  lipgloss.Color("10"),
		output.ClassDucked:  lipgloss.Color("11"),
		output.ClassStopped: lipgloss.Color("8"),
		output.ClassError:   lipgloss.Color("9"),
	}

	roleColors = map[model.Role]lipgloss.Color{
		model.RolePriority:     lipgloss.Color("11"),
		model.RoleMusic:        lipgloss.Color("12"),
		model.RoleIgnored:      lipgloss.Color("8"),
		model.RoleUnclassified: lipgloss.Color("7"),
	}
)

// Model is the main TUI model.
type Model struct {
	src       Source
	edit      AppEditor
	clipboard string
	interval  time.Duration
	now       func() time.Time

	mode Mode

	// Components
	list list.Model
	help help.Model
	keys KeyMap

	// State
	state   daemon.State
	loaded  bool
	lastErr error
	width   int
	height  int
	ready   bool

	// Status message
	statusMsg string
	statusErr bool
}

// sessionItem wraps a session for the list component.
type sessionItem struct {
	session engine.SessionStatus
	fading  bool
}

func (i sessionItem) Title() string {
	return i.session.Identity
}

func (i sessionItem) Description() string {
	parts := []string{
		i.session.Role.String(),
		fmt.Sprintf("vol %3d%%", int(i.session.Volume*100+0.5)),
		fmt.Sprintf("peak %.2f", i.session.Peak),
	}
	if i.session.Muted {
		parts = append(parts, "muted")
	}
	if i.fading {
		parts = append(parts, "fading")
	}
	return strings.Join(parts, " · ")
}

func (i sessionItem) FilterValue() string {
	return i.session.Identity
}

// sessionDelegate colours each row by role.
type sessionDelegate struct {
	list.DefaultDelegate
}

func newSessionDelegate() sessionDelegate {
	return sessionDelegate{DefaultDelegate: list.NewDefaultDelegate()}
}

// Render renders a list item with the role colour applied to the title.
func (d sessionDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	si, ok := item.(sessionItem)
	if !ok {
		d.DefaultDelegate.Render(w, m, index, item)
		return
	}

	title := d.Styles.NormalTitle
	desc := d.Styles.NormalDesc
	if index == m.Index() {
		title = d.Styles.SelectedTitle
		desc = d.Styles.SelectedDesc
	}
	if c, ok := roleColors[si.session.Role]; ok {
		title = title.Foreground(c)
	}

	fmt.Fprint(w, title.Render(si.Title()))
	fmt.Fprint(w, "\n")
	fmt.Fprint(w, desc.Render(si.Description()))
}

// New creates a new TUI model.
func New(src Source, opts RunOptions) Model {
	l := list.New(nil, newSessionDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.SetStatusBarItemName("session", "sessions")

	edit := opts.Editor
	if edit == nil {
		edit = ConfigEditor(opts.ConfigPath)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return Model{
		src:       src,
		edit:      edit,
		clipboard: opts.Clipboard,
		interval:  interval,
		now:       time.Now,
		mode:      ModeList,
		list:      l,
		help:      help.New(),
		keys:      DefaultKeyMap(),
	}
}

// Init initializes the TUI.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchState, m.tick())
}

type stateMsg struct {
	state daemon.State
	err   error
}

type tickMsg time.Time

// actionMsg reports the outcome of a control action.
type actionMsg struct {
	text string
	err  error
}

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

type copyResultMsg struct {
	err error
}

// fetchState queries the daemon.
func (m Model) fetchState() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	state, err := m.src.State(ctx)
	return stateMsg{state: state, err: err}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.list.SetSize(msg.Width, max(msg.Height-headerHeight-1, 1))
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchState, m.tick())

	case stateMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.loaded = true
		m.state = msg.state
		cmd := m.list.SetItems(m.buildListItems())
		return m, cmd

	case actionMsg:
		status := statusMsg{text: msg.text}
		if msg.err != nil {
			status = statusMsg{text: msg.err.Error(), isErr: true}
		}
		return m, tea.Batch(m.fetchState, func() tea.Msg { return status })

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil

	case copyResultMsg:
		if msg.err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Copy failed: " + msg.err.Error(), isErr: true}
			}
		}
		return m, func() tea.Msg {
			return statusMsg{text: "Copied to clipboard"}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		if m.mode == ModeHelp {
			m.mode = ModeList
		} else {
			m.mode = ModeHelp
		}
		return m, nil
	}

	if m.mode == ModeHelp {
		if msg.Type == tea.KeyEsc {
			m.mode = ModeList
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Toggle):
		return m, m.toggleEngine()

	case key.Matches(msg, m.keys.Priority):
		return m, m.assignSelected(model.RolePriority)

	case key.Matches(msg, m.keys.Music):
		return m, m.assignSelected(model.RoleMusic)

	case key.Matches(msg, m.keys.Ignore):
		return m, m.assignSelected(model.RoleIgnored)

	case key.Matches(msg, m.keys.Unassign):
		return m, m.assignSelected(model.RoleUnclassified)

	case key.Matches(msg, m.keys.Copy):
		text, err := m.stateYAML()
		if err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Failed to marshal YAML: " + err.Error(), isErr: true}
			}
		}
		return m, m.copyToClipboard(text)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchState
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// toggleEngine starts a stopped engine or stops a running one.
func (m Model) toggleEngine() tea.Cmd {
	running := m.state.Running
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if running {
			return actionMsg{text: "Engine stopped", err: src.Stop(ctx)}
		}
		return actionMsg{text: "Engine started", err: src.Start(ctx)}
	}
}

// assignSelected gives the selected session a role and asks the daemon to
// reload its configuration.
func (m Model) assignSelected(role model.Role) tea.Cmd {
	item, ok := m.list.SelectedItem().(sessionItem)
	if !ok {
		return nil
	}
	id := item.session.Identity
	edit, src := m.edit, m.src
	return func() tea.Msg {
		if err := edit(role, id); err != nil {
			return actionMsg{err: fmt.Errorf("update %s: %w", id, err)}
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := src.Reload(ctx); err != nil {
			return actionMsg{err: fmt.Errorf("reload: %w", err)}
		}
		if role == model.RoleUnclassified {
			return actionMsg{text: id + " unassigned"}
		}
		return actionMsg{text: fmt.Sprintf("%s marked %s", id, role)}
	}
}

// report builds the shared status view of the current state.
func (m Model) report() *output.Report {
	return output.NewReport(m.state, m.now())
}

// stateYAML renders the current state for the clipboard.
func (m Model) stateYAML() (string, error) {
	return toYAML(m.report())
}

// copyToClipboard copies text to the system clipboard.
func (m Model) copyToClipboard(text string) tea.Cmd {
	command := m.clipboard
	return func() tea.Msg {
		return copyResultMsg{err: copyText(text, command)}
	}
}

// buildListItems creates list items from the current sessions, grouped by role.
func (m Model) buildListItems() []list.Item {
	fading := make(map[string]bool, len(m.state.Fading))
	for _, id := range m.state.Fading {
		fading[id] = true
	}
	sessions := slices.Clone(m.state.Status.Sessions)
	core.Sort(sessions, core.DefaultSortOptions())

	items := make([]list.Item, len(sessions))
	for i, s := range sessions {
		items[i] = sessionItem{session: s, fading: fading[s.Identity]}
	}
	return items
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.mode == ModeHelp {
		return m.viewHelp()
	}
	return m.viewList()
}

// badge returns the phase label and its colour class.
func (m Model) badge() (string, string) {
	switch {
	case !m.loaded && m.lastErr != nil:
		return "offline", output.ClassError
	case !m.state.Running:
		return "stopped", output.ClassStopped
	case !m.state.Status.AudioAvailable && m.state.Status.AudioError != "":
		return "no audio", output.ClassError
	case m.state.Status.Phase == model.PhaseDucked:
		return "ducked", output.ClassDucked
	default:
		return "normal", output.ClassNormal
	}
}

func (m Model) viewHeader() string {
	label, class := m.badge()
	badge := badgeStyle.Background(badgeColors[class]).Render(strings.ToUpper(label))
	line1 := titleStyle.Render("autoduck") + " " + badge

	var line2 string
	switch {
	case m.lastErr != nil:
		line2 = errStyle.Render("daemon: " + m.lastErr.Error())
	case m.loaded:
		r := m.report()
		var parts []string
		if len(r.ActivePriority) > 0 {
			parts = append(parts, "priority: "+strings.Join(r.ActivePriority, ", "))
		}
		if r.TimeSince != "" {
			parts = append(parts, "last priority audio "+r.TimeSince)
		}
		if r.Settings != nil {
			parts = append(parts, fmt.Sprintf("ducked volume %s", percentString(r.Settings.VolumeDucked)))
		}
		line2 = dimStyle.Render(strings.Join(parts, " · "))
	}
	return line1 + "\n" + line2 + "\n"
}

func (m Model) viewList() string {
	s := m.viewHeader() + "\n" + m.list.View()

	if m.statusMsg != "" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
		if m.statusErr {
			style = errStyle
		}
		s += "\n" + style.Render(m.statusMsg)
	} else {
		s += "\n" + m.help.ShortHelpView(m.keys.ShortHelp())
	}
	return s
}

func (m Model) viewHelp() string {
	s := titleStyle.MarginBottom(1).Render("Keyboard Shortcuts") + "\n\n"
	s += m.help.FullHelpView(m.keys.FullHelp()) + "\n\n"
	s += dimStyle.Render("Role changes are written to the config file and reloaded by the daemon.") + "\n"
	s += dimStyle.Render("Press ? or esc to return")
	return s
}

func percentString(v float64) string {
	return fmt.Sprintf("%d%%", int(v*100+0.5))
}

// RunOptions configures the TUI.
type RunOptions struct {
	ConfigPath string        // Config file edited by role changes (empty = default path)
	Clipboard  string        // Clipboard command (empty = auto-detect)
	Interval   time.Duration // Poll interval (0 = DefaultInterval)
	Editor     AppEditor     // Overrides the config file editor
}

// Run starts the TUI against src.
func Run(src Source, opts RunOptions) error {
	p := tea.NewProgram(New(src, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
