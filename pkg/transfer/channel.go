package transfer

// Message is one discrete message from the transfer channel. IsText is the
// channel's own text/binary flag; payloads are never sniffed.
type Message struct {
	IsText bool
	Data   []byte
}

// Channel is the outbound side of an ordered, reliable message channel.
type Channel interface {
	SendText(text string) error
	Send(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	OnBufferedAmountLow(f func())
}
