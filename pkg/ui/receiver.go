package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	receiverEvent "github.com/rescp17/dx/internal/app_events/receiver"
	"github.com/rescp17/dx/internal/style"
	"github.com/rescp17/dx/internal/util"
)

type receiverModel struct {
	text     string
	hasText  bool
	received []string
}

// updateReceiver reports whether msg was a receiver event.
func (m *model) updateReceiver(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case receiverEvent.TextReceivedMsg:
		m.receiver.text = msg.Text
		m.receiver.hasText = true
	case receiverEvent.IntegrityIssueMsg:
		m.warnings = append(m.warnings, fmt.Sprintf("%s: expected %s, received %s",
			msg.Name, util.FormatSize(msg.Expected), util.FormatSize(msg.Received)))
	default:
		return false
	}
	return true
}

func (m model) receiverHeader() string {
	return style.TitleStyle.Render("dx receive") + "\n"
}

func (m model) receiverResult() string {
	out := m.receivedList()
	if m.receiver.hasText {
		out += style.TextStyle.Render(m.receiver.text) + "\n"
	}
	return out
}

// trackFile remembers finished file names for the summary.
func (m *model) trackFile(name string) {
	if len(m.receiver.received) > 0 && m.receiver.received[len(m.receiver.received)-1] == name {
		return
	}
	m.receiver.received = append(m.receiver.received, name)
}

func (m model) receivedList() string {
	var b strings.Builder
	for _, name := range m.receiver.received {
		b.WriteString("  " + style.FileStyle.Render(name) + "\n")
	}
	return b.String()
}
