package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/dx/internal/app_events"
	"github.com/rescp17/dx/internal/style"
	"github.com/rescp17/dx/internal/util"
)

type Mode int

const (
	Sender Mode = iota
	Receiver
)

const (
	nameWidth = 32
	barWidth  = 40
)

// AppController is the side of an App the view talks to.
type AppController interface {
	UIMessages() <-chan tea.Msg
	AppEvents() chan<- appevents.AppEvent
}

type KeyMap struct {
	Cancel key.Binding
}

var DefaultKeyMap = KeyMap{
	Cancel: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel transfer")),
}

type transferProgress struct {
	name       string
	index      int
	total      int
	fileBytes  int64
	fileSize   int64
	doneBytes  int64
	totalBytes int64
	started    time.Time
}

type model struct {
	mode          Mode
	appController AppController
	spinner       spinner.Model
	fileBar       progress.Model
	totalBar      progress.Model

	status     string
	cancelling bool
	progress   transferProgress
	warnings   []string

	sender   senderModel
	receiver receiverModel

	finished bool
	result   appevents.TransferDoneMsg
}

func NewModel(mode Mode, controller AppController) model {
	return model{
		mode:          mode,
		appController: controller,
		spinner:       style.NewSpinner(),
		fileBar:       style.NewProgress(barWidth),
		totalBar:      style.NewProgress(barWidth),
		status:        "Starting...",
	}
}

// Run blocks until the transfer finishes or the program is killed, and
// returns the final message the App sent.
func Run(ctx context.Context, mode Mode, controller AppController) (appevents.TransferDoneMsg, error) {
	p := tea.NewProgram(NewModel(mode, controller), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return appevents.TransferDoneMsg{}, fmt.Errorf("failed to run TUI: %w", err)
	}
	return final.(model).result, nil
}

// appMsg wraps what the App sent, so only those re-arm the listener.
type appMsg struct {
	tea.Msg
}

// listenForAppMessages is a command that listens for messages from the app controller.
func (m model) listenForAppMessages() tea.Cmd {
	return func() tea.Msg {
		return appMsg{<-m.appController.UIMessages()}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForAppMessages())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case appMsg:
		if done, ok := msg.Msg.(appevents.TransferDoneMsg); ok {
			m.finished = true
			m.result = done
			return m, tea.Quit
		}
		m.handleAppMessage(msg.Msg)
		return m, m.listenForAppMessages()
	}
	return m, nil
}

func (m *model) handleAppMessage(msg tea.Msg) {
	switch msg := msg.(type) {
	case appevents.StatusUpdateMsg:
		m.status = msg.Message
	case appevents.FileStartedMsg:
		if m.progress.started.IsZero() {
			m.progress.started = time.Now()
		}
		m.progress.name = msg.Name
		m.progress.index = msg.Index
		m.progress.total = msg.Total
		m.progress.fileSize = msg.Size
		m.progress.fileBytes = 0
		if m.mode == Receiver {
			m.trackFile(msg.Name)
		}
	case appevents.ProgressMsg:
		if m.progress.started.IsZero() {
			m.progress.started = time.Now()
		}
		m.progress.name = msg.Name
		m.progress.fileBytes = msg.FileBytes
		m.progress.fileSize = msg.FileSize
		m.progress.doneBytes = msg.DoneBytes
		if msg.TotalBytes > 0 {
			m.progress.totalBytes = msg.TotalBytes
		}
	case appevents.AppErrorMsg:
		m.warnings = append(m.warnings, msg.Err.Error())
	default:
		var handled bool
		switch m.mode {
		case Sender:
			handled = m.updateSender(msg)
		case Receiver:
			handled = m.updateReceiver(msg)
		}
		if !handled {
			slog.Debug("Ignoring app message", "type", fmt.Sprintf("%T", msg))
		}
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, DefaultKeyMap.Cancel) || m.cancelling {
		return m, nil
	}
	m.cancelling = true
	m.status = "Cancelling..."
	select {
	case m.appController.AppEvents() <- appevents.CancelTransferEvent{}:
	default:
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	switch m.mode {
	case Sender:
		b.WriteString(m.senderHeader())
	case Receiver:
		b.WriteString(m.receiverHeader())
	}

	if m.finished {
		b.WriteString(m.resultView())
		return b.String()
	}

	if m.progress.name == "" {
		fmt.Fprintf(&b, "\n%s %s\n", m.spinner.View(), m.status)
	} else {
		b.WriteString(m.progressView())
	}
	for _, w := range m.warnings {
		b.WriteString(style.WarnStyle.Render("! "+w) + "\n")
	}
	b.WriteString("\n" + style.HelpStyle.Render(DefaultKeyMap.Cancel.Help().Key+" "+DefaultKeyMap.Cancel.Help().Desc) + "\n")
	return b.String()
}

func (m model) progressView() string {
	p := m.progress
	var b strings.Builder
	label := p.name
	if p.total > 0 {
		label = fmt.Sprintf("[%d/%d] %s", p.index, p.total, p.name)
	}
	fmt.Fprintf(&b, "\n%s %s %s\n", m.spinner.View(), style.FileStyle.Render(util.PadRight(label, nameWidth)), m.status)
	fmt.Fprintf(&b, "  %s %s / %s\n", m.fileBar.ViewAs(ratio(p.fileBytes, p.fileSize)), util.FormatSize(p.fileBytes), util.FormatSize(p.fileSize))
	if p.totalBytes > 0 {
		rate := util.FormatRate(p.doneBytes, time.Since(p.started))
		fmt.Fprintf(&b, "  %s %s / %s  %s\n", m.totalBar.ViewAs(ratio(p.doneBytes, p.totalBytes)), util.FormatSize(p.doneBytes), util.FormatSize(p.totalBytes), rate)
	}
	return b.String()
}

func (m model) resultView() string {
	var b strings.Builder
	if m.result.Err == nil {
		b.WriteString("\n" + style.SuccessStyle.Render(m.result.Summary) + "\n")
	} else {
		b.WriteString("\n" + style.ErrorStyle.Render(m.result.Summary) + "\n")
	}
	if m.mode == Receiver {
		b.WriteString(m.receiverResult())
	}
	for _, w := range m.warnings {
		b.WriteString(style.WarnStyle.Render("! "+w) + "\n")
	}
	return b.String()
}

func ratio(done, total int64) float64 {
	if total <= 0 {
		return 1
	}
	r := float64(done) / float64(total)
	if r > 1 {
		return 1
	}
	return r
}
