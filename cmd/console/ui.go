package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/muesli/reflow/wordwrap"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "What do you do?"
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	streamClient *http.Client
	session      *state.Session
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Genre selection state
	showGenreModal bool
	genres         []genre.Preset
	selectedGenre  int
	loadingGenres  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int

	// Event stream state
	ctx        context.Context
	cancel     context.CancelFunc
	eventChan  chan events.Event
	pending    string
	micMuted   bool
	speakingID int
	terminated bool
	status     string
	notices    []string
}

type genresLoadedMsg struct {
	genres []genre.Preset
	err    error
}

type adventureCreatedMsg struct {
	session *state.Session
	err     error
}

type adventureMsg struct {
	session *state.Session
	err     error
}

type turnSentMsg struct {
	requestID string
	err       error
}

type stopSentMsg struct {
	err error
}

type sseEventMsg struct {
	event events.Event
}

type streamClosedMsg struct {
	err error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	companionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

var writeClipboard = clipboard.WriteAll

func NewConsoleUI(cfg *ConsoleConfig, client, streamClient *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	ctx, cancel := context.WithCancel(context.Background())

	return ConsoleUI{
		config:         cfg,
		client:         client,
		streamClient:   streamClient,
		textarea:       ta,
		chatViewport:   chatVp,
		metaViewport:   metaVp,
		showGenreModal: true,
		loadingGenres:  true,
		ctx:            ctx,
		cancel:         cancel,
		eventChan:      make(chan events.Event, 64),
	}
}

func senderLabel(msg chat.Message, companionName string) string {
	switch msg.Sender {
	case chat.SenderUser:
		return userStyle.Render("You: ")
	case chat.SenderCompanion:
		if companionName == "" {
			companionName = "Companion"
		}
		return companionStyle.Render(companionName + ": ")
	default:
		return narratorStyle.Render(AgentName + ": ")
	}
}

// formatMessage renders one chat log entry wrapped to width.
func formatMessage(msg chat.Message, companionName string, width int) string {
	if width < 20 {
		width = 20
	}
	var sb strings.Builder
	sb.WriteString(senderLabel(msg, companionName))
	if msg.IsNarrating {
		sb.WriteString(loadingStyle.Render("♪ "))
	}
	sb.WriteString(wordwrap.String(msg.Text, width))
	if msg.ImageURL != "" {
		sb.WriteString("\n" + promptStyle.Render(wordwrap.String("[image] "+msg.ImageURL, width)))
	}
	return sb.String()
}

func writeMetadata(s *state.Session, micMuted bool, speakingID int, status string) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("ADVENTURE") + "\n\n")

	content.WriteString("Adventure ID:\n")
	content.WriteString(s.ID.String()[:8] + "...\n\n")

	content.WriteString("Genre:\n")
	content.WriteString(string(s.Genre) + "\n\n")

	if s.Title != "" {
		content.WriteString("Title:\n")
		content.WriteString(s.Title + "\n\n")
	}

	content.WriteString("Companion:\n")
	if s.CompanionPresent && s.Companion != nil {
		content.WriteString(s.Companion.Name + "\n")
		if s.Companion.ShortDescription != "" {
			content.WriteString(promptStyle.Render(s.Companion.ShortDescription) + "\n")
		}
		content.WriteString("\n")
	} else {
		content.WriteString("Not yet met\n\n")
	}

	if len(s.RecentLocationKeywords) > 0 {
		content.WriteString("Recent places:\n")
		for _, kw := range s.RecentLocationKeywords {
			content.WriteString(fmt.Sprintf("• %s\n", kw))
		}
		content.WriteString("\n")
	}

	content.WriteString("Turns:\n")
	content.WriteString(fmt.Sprintf("%d\n\n", s.UserTurnCount))

	content.WriteString("Mic:\n")
	if micMuted {
		content.WriteString(loadingStyle.Render("muted") + "\n")
	} else {
		content.WriteString("open\n")
	}
	if speakingID > 0 {
		content.WriteString(loadingStyle.Render(fmt.Sprintf("Narrating #%d", speakingID)) + "\n")
	}
	content.WriteString("\n")

	if status != "" {
		content.WriteString(promptStyle.Render(status) + "\n\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• Ctrl+Y: Copy last line\n")
	content.WriteString("• /stop: Stop narration\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• Ctrl+C: Quit\n")

	return content.String()
}

// writeChatContent builds the chat content from the session for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("STORY WEAVER") + "\n\n")
	content.WriteString("Say what you do and the story answers.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	if m.session != nil {
		companionName := m.session.CompanionName()
		for _, msg := range m.session.ChatLog {
			content.WriteString(formatMessage(msg, companionName, chatWidth) + "\n\n")
		}
	}

	if m.pending != "" {
		content.WriteString(userStyle.Render("You: ") + wordwrap.String(m.pending, chatWidth) + "\n\n")
	}

	for _, notice := range m.notices {
		content.WriteString(notice + "\n\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) refreshMeta() {
	if m.session != nil {
		m.metaViewport.SetContent(writeMetadata(m.session, m.micMuted, m.speakingID, m.status))
	}
}

func (m *ConsoleUI) addNotice(notice string) {
	m.notices = append(m.notices, notice)
	m.writeChatContent()
}

func (m *ConsoleUI) resize() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadGenres()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Stream messages are handled in every mode so the listener keeps draining.
	switch msg := msg.(type) {
	case sseEventMsg:
		m.applyEvent(msg.event)
		return m, tea.Batch(m.waitForEvent(), m.afterEvent(msg.event))
	case streamClosedMsg:
		if msg.err != nil && m.ctx.Err() == nil {
			m.addNotice(errorStyle.Render("Event stream closed: " + msg.err.Error()))
		}
		return m, nil
	}

	if m.showGenreModal {
		return m.updateGenreModal(msg)
	}

	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.writeChatContent()
		m.refreshMeta()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlY:
			m.copyLastLine()
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			if m.terminated {
				m.textarea.Reset()
				m.addNotice(errorStyle.Render("This adventure has ended. Restart the console to begin a new one."))
				return m, nil
			}
			if m.loading {
				return m, nil
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0
			m.pending = input
			m.notices = nil
			m.writeChatContent()

			return m, tea.Batch(m.sendTurn(input), progressTick())
		}

	case turnSentMsg:
		if msg.err != nil {
			m.loading = false
			m.pending = ""
			m.addNotice(errorStyle.Render("Error: " + msg.err.Error()))
		}
		return m, nil

	case stopSentMsg:
		if msg.err != nil {
			m.addNotice(errorStyle.Render("Error: " + msg.err.Error()))
		}
		return m, nil

	case adventureMsg:
		if msg.err == nil && msg.session != nil {
			m.session = msg.session
			m.writeChatContent()
			m.refreshMeta()
		}
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// applyEvent folds a streamed event into the local view of the adventure.
func (m *ConsoleUI) applyEvent(ev events.Event) {
	if m.session == nil {
		return
	}

	switch ev.Type {
	case events.EventTypeMessageAppended:
		var msg chat.Message
		if err := decodeField(ev.Data, "message", &msg); err != nil {
			return
		}
		if msg.Sender == chat.SenderUser {
			m.pending = ""
		}
		upsertMessage(m.session, msg)

	case events.EventTypeMessageNarration:
		var id int
		var narrating bool
		if decodeField(ev.Data, "message_id", &id) != nil || decodeField(ev.Data, "is_narrating", &narrating) != nil {
			return
		}
		m.session.SetNarrating(id, narrating)

	case events.EventTypeSpeechStarted:
		var id int
		_ = decodeField(ev.Data, "message_id", &id)
		m.speakingID = id

	case events.EventTypeSpeechEnded:
		m.speakingID = 0

	case events.EventTypeMicMuted:
		m.micMuted = true

	case events.EventTypeMicUnmuted:
		m.micMuted = false

	case events.EventTypeTurnCompleted:
		m.loading = false
		m.pending = ""

	case events.EventTypeTurnFailed:
		m.loading = false
		m.pending = ""
		var msg string
		_ = decodeField(ev.Data, "error", &msg)
		m.notices = append(m.notices, errorStyle.Render("Turn failed: "+msg))

	case events.EventTypeSessionTerminated:
		m.loading = false
		m.pending = ""
		m.terminated = true
		m.micMuted = true
		var reason string
		_ = decodeField(ev.Data, "reason", &reason)
		m.notices = append(m.notices, errorStyle.Render("The adventure has ended ("+reason+")."))
	}

	m.writeChatContent()
	m.refreshMeta()
}

// afterEvent resyncs the adventure when the stream connects or a turn ends,
// so scene, companion and turn count stay current.
func (m ConsoleUI) afterEvent(ev events.Event) tea.Cmd {
	if m.session == nil || m.terminated {
		return nil
	}
	switch ev.Type {
	case "connected", events.EventTypeTurnCompleted:
		return m.refreshAdventure()
	}
	return nil
}

// upsertMessage replaces the message with the same id or appends it.
func upsertMessage(s *state.Session, msg chat.Message) {
	for i := range s.ChatLog {
		if s.ChatLog[i].ID == msg.ID {
			s.ChatLog[i] = msg
			return
		}
	}
	s.ChatLog = append(s.ChatLog, msg)
	if msg.ID >= s.NextMessageID {
		s.NextMessageID = msg.ID + 1
	}
}

// lastStoryLine returns the most recent narrator or companion text.
func lastStoryLine(s *state.Session) string {
	if s == nil {
		return ""
	}
	for i := len(s.ChatLog) - 1; i >= 0; i-- {
		if s.ChatLog[i].Sender != chat.SenderUser {
			return s.ChatLog[i].Text
		}
	}
	return ""
}

func (m *ConsoleUI) copyLastLine() {
	text := lastStoryLine(m.session)
	if text == "" {
		m.status = "Nothing to copy yet"
	} else if err := writeClipboard(text); err != nil {
		m.status = "Copy failed: " + err.Error()
	} else {
		m.status = "Copied to clipboard"
	}
	m.refreshMeta()
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))
	m.textarea.Reset()

	switch cmd {
	case "/help":
		helpText := `
Commands:
• /help - Show this help
• /stop - Stop the current narration
• /copy - Copy the last story line (also Ctrl+Y)
• /refresh - Reload the adventure
• Ctrl+C - Quit

How to play:
• Say what you do and press Enter
• Talk to your companion once you meet them
• Describe where you go to move the story along`
		m.addNotice(titleStyle.Render("Help:") + helpText)
		return m, nil

	case "/stop":
		return m, m.stop()

	case "/copy":
		m.copyLastLine()
		return m, nil

	case "/refresh":
		return m, m.refreshAdventure()
	}

	m.addNotice(errorStyle.Render("Unknown command: " + cmd))
	return m, nil
}

func (m ConsoleUI) sendTurn(message string) tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		requestID, err := sendTurn(m.client, m.config.APIBaseURL, id, message)
		return turnSentMsg{requestID, err}
	}
}

func (m ConsoleUI) stop() tea.Cmd {
	if m.session == nil {
		return nil
	}
	id := m.session.ID
	return func() tea.Msg {
		return stopSentMsg{stopNarration(m.client, m.config.APIBaseURL, id)}
	}
}

func (m ConsoleUI) refreshAdventure() tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		s, err := getAdventure(m.client, m.config.APIBaseURL, id)
		return adventureMsg{s, err}
	}
}

func (m ConsoleUI) loadGenres() tea.Cmd {
	return func() tea.Msg {
		genres, err := listGenres(m.client, m.config.APIBaseURL)
		return genresLoadedMsg{genres, err}
	}
}

func (m ConsoleUI) createAdventure(g genre.Genre) tea.Cmd {
	return func() tea.Msg {
		s, err := createAdventure(m.client, m.config.APIBaseURL, g)
		return adventureCreatedMsg{s, err}
	}
}

// listen runs the event stream until the console quits.
func (m ConsoleUI) listen() tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		return streamClosedMsg{listenToSSE(m.ctx, m.streamClient, m.config.APIBaseURL, id, m.eventChan)}
	}
}

func (m ConsoleUI) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.eventChan:
			return sseEventMsg{ev}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m ConsoleUI) quit() (tea.Model, tea.Cmd) {
	m.cancel()
	return m, tea.Quit
}

func (m ConsoleUI) updateGenreModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case genresLoadedMsg:
		m.loadingGenres = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.genres = msg.genres
		}

	case adventureCreatedMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.showGenreModal = false
		m.loading = true // the opening scene is still being narrated
		if m.width > 0 && m.height > 0 {
			m.resize()
		}
		m.writeChatContent()
		m.refreshMeta()
		m.textarea.Focus()
		m.ready = true
		return m, tea.Batch(textarea.Blink, m.listen(), m.waitForEvent(), progressTick())

	case tea.KeyMsg:
		if m.loadingGenres {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m.quit()
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			m.showGenreModal = false
			return m, nil
		case tea.KeyUp:
			if m.selectedGenre > 0 {
				m.selectedGenre--
			}
		case tea.KeyDown:
			if m.selectedGenre < len(m.genres)-1 {
				m.selectedGenre++
			}
		case tea.KeyEnter:
			if m.err == nil && !m.loading && len(m.genres) > 0 {
				m.loading = true
				return m, m.createAdventure(m.genres[m.selectedGenre].Name)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m.quit()
			case "n", "N":
				m.showQuitModal = false
				if m.session == nil {
					m.showGenreModal = true
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to leave your adventure?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderGenreModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingGenres:
		content.WriteString(modalTitleStyle.Render("Loading Genres..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(m.err.Error()))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Weaving your world..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Inventing a setting and a companion..."))
	default:
		content.WriteString(modalTitleStyle.Render("Choose a Genre"))
		content.WriteString("\n\n")

		for i, g := range m.genres {
			line := string(g.Name)
			if g.Tone != "" {
				line += promptStyle.Render(" - " + g.Tone)
			}
			if i == m.selectedGenre {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + string(g.Name)))
			} else {
				content.WriteString(modalItemStyle.Render("  " + line))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(70).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showGenreModal {
		return m.renderGenreModal()
	}

	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
