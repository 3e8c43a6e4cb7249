package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	senderEvent "github.com/rescp17/dx/internal/app_events/sender"
	"github.com/rescp17/dx/internal/style"
	"github.com/rescp17/dx/internal/util"
)

type senderModel struct {
	code       string
	files      int
	totalBytes int64
}

// updateSender reports whether msg was a sender event.
func (m *model) updateSender(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case senderEvent.CodeReadyMsg:
		m.sender.code = msg.Code
	case senderEvent.ManifestReadyMsg:
		m.sender.files = msg.Files
		m.sender.totalBytes = msg.TotalBytes
		m.progress.totalBytes = msg.TotalBytes
	case senderEvent.CompletionAckMsg:
		m.status = "Receiver confirmed all files"
	default:
		return false
	}
	return true
}

func (m model) senderHeader() string {
	var b strings.Builder
	b.WriteString(style.TitleStyle.Render("dx send") + "\n")
	if m.sender.code != "" {
		b.WriteString("Code for the receiver:\n" + style.CodeStyle.Render(m.sender.code) + "\n")
		fmt.Fprintf(&b, "Run %s on the other machine.\n", style.HighlightFontStyle.Render("dx receive --code "+m.sender.code))
	}
	if m.sender.files > 0 {
		fmt.Fprintf(&b, "%d file(s), %s\n", m.sender.files, util.FormatSize(m.sender.totalBytes))
	}
	return b.String()
}
