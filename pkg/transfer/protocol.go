package transfer

// FrameType tags a control frame. Control frames always travel as text
// messages; file bytes always travel as binary messages.
type FrameType string

const (
	FrameFileCount        FrameType = "file-count"
	FrameFile             FrameType = "file"
	FrameFileEnd          FrameType = "file-end"
	FrameAllFilesEnd      FrameType = "all-files-end"
	FrameAllFilesReceived FrameType = "all-files-received"
	FrameText             FrameType = "text"
	FrameSigint           FrameType = "sigint"
	FrameError            FrameType = "error"
)

// ControlFrame is the decoded form of a text message on the transfer channel.
// Only the fields belonging to Type are meaningful.
type ControlFrame struct {
	Type    FrameType
	Name    string
	Size    int64
	Count   int
	Content string
	Message string
}

func FileCountFrame(count int) ControlFrame {
	return ControlFrame{Type: FrameFileCount, Count: count}
}

func FileFrame(name string, size int64) ControlFrame {
	return ControlFrame{Type: FrameFile, Name: name, Size: size}
}

func FileEndFrame() ControlFrame          { return ControlFrame{Type: FrameFileEnd} }
func AllFilesEndFrame() ControlFrame      { return ControlFrame{Type: FrameAllFilesEnd} }
func AllFilesReceivedFrame() ControlFrame { return ControlFrame{Type: FrameAllFilesReceived} }
func SigintFrame() ControlFrame           { return ControlFrame{Type: FrameSigint} }

func TextFrame(content string) ControlFrame {
	return ControlFrame{Type: FrameText, Content: content}
}

func ErrorFrame(message string) ControlFrame {
	return ControlFrame{Type: FrameError, Message: message}
}
