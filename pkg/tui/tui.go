// Package tui provides a terminal user interface for musicng
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stephaneeybert/musicng-sub001/pkg/keyboard"
	"github.com/stephaneeybert/musicng-sub001/pkg/player"
	"github.com/stephaneeybert/musicng-sub001/pkg/session"
	"github.com/stephaneeybert/musicng-sub001/pkg/store"
)

// Stave-inspired color scheme
var (
	inkBlue    = lipgloss.Color("#4FC3F7")
	noteAmber  = lipgloss.Color("#FFC107")
	paperWhite = lipgloss.Color("#ECEFF1")
	darkGray   = lipgloss.Color("#333333")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(inkBlue).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(paperWhite).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(inkBlue).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(noteAmber).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(inkBlue).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(inkBlue).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateLoading
	StateResult
	StateDevices
	StateSoundtracks
	StatePlaying
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Target      State
}

var menuItems = []MenuItem{
	{Title: "Load soundtrack", Description: "Load a MIDI file as a soundtrack", Target: StateFilePicker},
	{Title: "Soundtracks", Description: "Play or delete loaded soundtracks", Target: StateSoundtracks},
	{Title: "Devices", Description: "Connected MIDI keyboards", Target: StateDevices},
	{Title: "Exit", Description: "Exit the application"},
}

// Session is what the TUI needs from the running session.
type Session interface {
	AddSoundtrack(ctx context.Context, name string, data []byte) (store.Soundtrack, bool, error)
	DeleteSoundtrack(ctx context.Context, id string) error
	PlaySoundtrack(ctx context.Context, id string, opts ...player.Option) error
	SetMuted(ctx context.Context, id string, muted bool) (bool, error)
}

// Model represents the TUI model
type Model struct {
	session      Session
	state        State
	menuIndex    int
	listIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	loaded       store.Soundtrack
	added        bool
	playing      string
	stopPlaying  context.CancelFunc
	err          error
	width        int
	height       int

	devices     []store.Device
	soundtracks []store.Soundtrack
	deviceCh    <-chan []store.Device
	trackCh     <-chan []store.Soundtrack
}

type devicesMsg []store.Device

type soundtracksMsg []store.Soundtrack

// loadDoneMsg signals soundtrack loading completion
type loadDoneMsg struct {
	soundtrack store.Soundtrack
	added      bool
	err        error
}

type playDoneMsg struct {
	err error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitDevices(m.deviceCh), waitSoundtracks(m.trackCh))
}

// latest returns a store subscriber feeding ch and the channel itself. The
// channel keeps only the newest list; it is written from the session loop
// only, so the send never blocks.
func latest[T any]() (func(T), chan T) {
	ch := make(chan T, 1)
	return func(v T) {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}, ch
}

func waitDevices(ch <-chan []store.Device) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg { return devicesMsg(<-ch) }
}

func waitSoundtracks(ch <-chan []store.Soundtrack) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg { return soundtracksMsg(<-ch) }
}

// New creates a new TUI model. The device and soundtrack channels deliver
// the store contents; they may be nil.
func New(sess Session, devices <-chan []store.Device, soundtracks <-chan []store.Soundtrack) Model {
	// Initialize file picker
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi"}
	fp.CurrentDirectory, _ = os.Getwd()

	// Initialize spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(inkBlue)

	return Model{
		session:    sess,
		state:      StateMenu,
		filePicker: fp,
		spinner:    s,
		deviceCh:   devices,
		trackCh:    soundtracks,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle file picker state first - it needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.state = StateLoading
			return m, tea.Batch(m.spinner.Tick, m.loadSoundtrack())
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			return m.updateResult(msg)
		case StateDevices:
			return m.updateDevices(msg)
		case StateSoundtracks:
			return m.updateSoundtracks(msg)
		case StatePlaying:
			return m.updatePlaying(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case devicesMsg:
		m.devices = msg
		m.listIndex = clampIndex(m.listIndex, len(m.devices))
		return m, waitDevices(m.deviceCh)

	case soundtracksMsg:
		m.soundtracks = msg
		m.listIndex = clampIndex(m.listIndex, len(m.soundtracks))
		return m, waitSoundtracks(m.trackCh)

	case loadDoneMsg:
		m.state = StateResult
		m.loaded = msg.soundtrack
		m.added = msg.added
		m.err = msg.err
		return m, nil

	case playDoneMsg:
		if m.stopPlaying != nil {
			m.stopPlaying()
			m.stopPlaying = nil
		}
		m.state = StateSoundtracks
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		}
		return m, nil
	}

	return m, nil
}

func clampIndex(i, n int) int {
	if i >= n {
		i = n - 1
	}
	return max(i, 0)
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		if m.menuIndex == len(menuItems)-1 {
			return m, tea.Quit
		}
		m.state = menuItems[m.menuIndex].Target
		m.listIndex = 0
		m.err = nil
		if m.state == StateFilePicker {
			return m, m.filePicker.Init()
		}
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.selectedFile = ""
		m.loaded = store.Soundtrack{}
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateDevices(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.listIndex = clampIndex(m.listIndex-1, len(m.devices))
	case "down", "j":
		m.listIndex = clampIndex(m.listIndex+1, len(m.devices))
	case "m", "enter":
		if len(m.devices) == 0 {
			return m, nil
		}
		d := m.devices[m.listIndex]
		return m, m.toggleMute(d.ID, !d.Muted)
	case "esc":
		m.state = StateMenu
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateSoundtracks(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.listIndex = clampIndex(m.listIndex-1, len(m.soundtracks))
	case "down", "j":
		m.listIndex = clampIndex(m.listIndex+1, len(m.soundtracks))
	case "enter", "p":
		if len(m.soundtracks) == 0 {
			return m, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.stopPlaying = cancel
		m.playing = m.soundtracks[m.listIndex].ID
		m.state = StatePlaying
		m.err = nil
		return m, tea.Batch(m.spinner.Tick, m.play(ctx, m.playing))
	case "d", "delete":
		if len(m.soundtracks) == 0 {
			return m, nil
		}
		return m, m.deleteSoundtrack(m.soundtracks[m.listIndex].ID)
	case "esc":
		m.state = StateMenu
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updatePlaying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "s":
		if m.stopPlaying != nil {
			m.stopPlaying()
		}
	case "q", "ctrl+c":
		if m.stopPlaying != nil {
			m.stopPlaying()
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) loadSoundtrack() tea.Cmd {
	sess, path := m.session, m.selectedFile
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return loadDoneMsg{err: err}
		}
		st, added, err := sess.AddSoundtrack(context.Background(), session.SoundtrackName(path), data)
		return loadDoneMsg{soundtrack: st, added: added, err: err}
	}
}

func (m Model) play(ctx context.Context, id string) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		return playDoneMsg{err: sess.PlaySoundtrack(ctx, id)}
	}
}

func (m Model) deleteSoundtrack(id string) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		if err := sess.DeleteSoundtrack(context.Background(), id); err != nil {
			return loadDoneMsg{err: err}
		}
		return nil
	}
}

func (m Model) toggleMute(id string, muted bool) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		if _, err := sess.SetMuted(context.Background(), id, muted); err != nil {
			return loadDoneMsg{err: err}
		}
		return nil
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	// Header
	header := asciiLogo()
	s.WriteString(header)
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateLoading:
		s.WriteString(m.viewLoading())
	case StateResult:
		s.WriteString(m.viewResult())
	case StateDevices:
		s.WriteString(m.viewDevices())
	case StateSoundtracks:
		s.WriteString(m.viewSoundtracks())
	case StatePlaying:
		s.WriteString(m.viewPlaying())
	}

	// Footer help
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" MUSICNG "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(noteAmber).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}
	s.WriteString(statusStyle.Render(fmt.Sprintf("%d device(s) • %d soundtrack(s)", len(m.devices), len(m.soundtracks))))

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MIDI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewLoading() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" LOADING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Loading %s...\n", m.spinner.View(), filepath.Base(m.selectedFile)))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	switch {
	case m.err != nil:
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Failed: %s", m.err.Error())))
	case !m.added:
		s.WriteString(titleStyle.Render(" ALREADY LOADED "))
		s.WriteString("\n\n")
		s.WriteString(statusStyle.Render(fmt.Sprintf("A soundtrack named %s is already loaded", m.loaded.Name)))
	default:
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Soundtrack loaded!"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("File:   %s\n", filepath.Base(m.selectedFile)))
		s.WriteString(fmt.Sprintf("Name:   %s\n", m.loaded.Name))
		s.WriteString(fmt.Sprintf("Tracks: %d", len(m.loaded.Tracks)))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

// renderKeyboard draws the keys of a virtual keyboard, if kb is one.
func renderKeyboard(kb keyboard.Keyboard) string {
	if v, ok := kb.(*keyboard.Virtual); ok {
		return v.Render()
	}
	return ""
}

func (m Model) viewDevices() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" DEVICES "))
	s.WriteString("\n\n")
	if len(m.devices) == 0 {
		s.WriteString(mutedStyle.Render("  No MIDI device connected"))
	}
	for i, d := range m.devices {
		line := d.Name
		if d.Muted {
			line += " (muted)"
		}
		switch {
		case i == m.listIndex:
			s.WriteString(selectedStyle.Render("▸ " + line))
		case d.Muted:
			s.WriteString(mutedStyle.PaddingLeft(2).Render("  " + line))
		default:
			s.WriteString(menuStyle.Render("  " + line))
		}
		s.WriteString("\n")
		if keys := renderKeyboard(d.Keyboard); keys != "" {
			s.WriteString(menuStyle.Render("  " + keys))
			s.WriteString("\n")
		}
	}
	s.WriteString(helpStyle.Render("m: mute/unmute • esc: back"))

	return boxStyle.Render(s.String())
}

func (m Model) viewSoundtracks() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SOUNDTRACKS "))
	s.WriteString("\n\n")
	if len(m.soundtracks) == 0 {
		s.WriteString(mutedStyle.Render("  No soundtrack loaded"))
	}
	for i, st := range m.soundtracks {
		line := fmt.Sprintf("%s (%d tracks)", st.Name, len(st.Tracks))
		if i == m.listIndex {
			s.WriteString(selectedStyle.Render("▸ " + line))
		} else {
			s.WriteString(menuStyle.Render("  " + line))
		}
		s.WriteString("\n")
	}
	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
		s.WriteString("\n")
	}
	s.WriteString(helpStyle.Render("enter: play • d: delete • esc: back"))

	return boxStyle.Render(s.String())
}

func (m Model) viewPlaying() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" PLAYING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Playing %s...\n", m.spinner.View(), m.playing))
	for _, st := range m.soundtracks {
		if st.ID == m.playing {
			if keys := renderKeyboard(st.Keyboard); keys != "" {
				s.WriteString(menuStyle.Render(keys))
				s.WriteString("\n")
			}
		}
	}
	s.WriteString(helpStyle.Render("esc: stop"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
  __  __ _   _ ___ ___ ___ _  _  ___
 |  \/  | | | / __|_ _/ __| \| |/ __|
 | |\/| | |_| \__ \| | (__| .' | (_ |
 |_|  |_|\___/|___/___\___|_|\_|\___|
`
	return lipgloss.NewStyle().Foreground(inkBlue).Render(logo)
}

// Run starts the TUI application on a running session
func Run(ctx context.Context, sess *session.Session) error {
	onDevices, devices := latest[[]store.Device]()
	cancelDevices, err := sess.SubscribeDevices(ctx, onDevices)
	if err != nil {
		return err
	}
	defer cancelDevices()

	onSoundtracks, soundtracks := latest[[]store.Soundtrack]()
	cancelSoundtracks, err := sess.SubscribeSoundtracks(ctx, onSoundtracks)
	if err != nil {
		return err
	}
	defer cancelSoundtracks()

	p := tea.NewProgram(New(sess, devices, soundtracks), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
