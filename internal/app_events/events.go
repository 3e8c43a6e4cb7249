package appevents

// AppEvent is a marker interface for events sent from the TUI to the App's logic controller.
// Only types embedding Event satisfy it.
type AppEvent interface {
	isAppEvent()
}

// Event is embedded in other event types to satisfy the AppEvent interface.
type Event struct{}

func (Event) isAppEvent() {}

// --- App Events (from TUI to App) ---

// CancelTransferEvent is raised when the operator interrupts from inside the TUI.
type CancelTransferEvent struct {
	Event
}

var _ AppEvent = (*CancelTransferEvent)(nil)

// --- UI Messages (from App to TUI), shared by both roles ---

type StatusUpdateMsg struct {
	Message string
}

// FileStartedMsg announces the file currently on the wire. Index is 1-based.
type FileStartedMsg struct {
	Name  string
	Size  int64
	Index int
	Total int
}

type ProgressMsg struct {
	Name       string
	FileBytes  int64
	FileSize   int64
	DoneBytes  int64
	TotalBytes int64
}

// TransferDoneMsg is the last message the App sends. Err is nil on a clean finish.
type TransferDoneMsg struct {
	Err     error
	Summary string
}

type AppErrorMsg struct {
	Err error
}
