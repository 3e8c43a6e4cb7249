package sender

// CodeReadyMsg carries the pairing code the operator must share with the receiver.
type CodeReadyMsg struct {
	Code string
}

type ManifestReadyMsg struct {
	Files      int
	TotalBytes int64
}

// CompletionAckMsg is sent once the receiver confirmed every file arrived.
type CompletionAckMsg struct{}
