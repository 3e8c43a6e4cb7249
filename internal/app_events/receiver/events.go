package receiver

type TextReceivedMsg struct {
	Text string
}

// IntegrityIssueMsg flags a file whose received length differs from the declared size.
type IntegrityIssueMsg struct {
	Name     string
	Expected int64
	Received int64
}
