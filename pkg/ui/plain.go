package ui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/dx/internal/app_events"
	receiverEvent "github.com/rescp17/dx/internal/app_events/receiver"
	senderEvent "github.com/rescp17/dx/internal/app_events/sender"
	"github.com/rescp17/dx/internal/util"
)

// RunPlain prints one line per milestone instead of drawing the TUI. Byte
// level progress is not printed. It returns the App's final message.
func RunPlain(ctx context.Context, w io.Writer, msgs <-chan tea.Msg) appevents.TransferDoneMsg {
	for {
		select {
		case <-ctx.Done():
			return appevents.TransferDoneMsg{Err: context.Cause(ctx), Summary: "Stopped"}
		case msg := <-msgs:
			switch msg := msg.(type) {
			case senderEvent.CodeReadyMsg:
				fmt.Fprintf(w, "Code: %s\nRun: dx receive --code %s\n", msg.Code, msg.Code)
			case senderEvent.ManifestReadyMsg:
				fmt.Fprintf(w, "Sending %d file(s), %s\n", msg.Files, util.FormatSize(msg.TotalBytes))
			case appevents.StatusUpdateMsg:
				fmt.Fprintln(w, msg.Message)
			case appevents.FileStartedMsg:
				fmt.Fprintf(w, "[%d/%d] %s (%s)\n", msg.Index, msg.Total, msg.Name, util.FormatSize(msg.Size))
			case receiverEvent.IntegrityIssueMsg:
				fmt.Fprintf(w, "warning: %s: expected %s, received %s\n",
					msg.Name, util.FormatSize(msg.Expected), util.FormatSize(msg.Received))
			case appevents.AppErrorMsg:
				fmt.Fprintf(w, "warning: %v\n", msg.Err)
			case appevents.TransferDoneMsg:
				fmt.Fprintln(w, msg.Summary)
				return msg
			}
		}
	}
}
