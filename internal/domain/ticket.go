package domain

// Caller is the requester name pair sent to iTop.
type Caller struct {
	FirstName string
	LastName  string
}

// TicketRequest carries the fields of a new UserRequest.
type TicketRequest struct {
	Organization string
	Caller       Caller
	Title        string
	Description  string
	SlackAddress string
}

// NoticeKind distinguishes the two webhook flows.
type NoticeKind string

const (
	NoticeAssigned NoticeKind = "assigned"
	NoticeResolved NoticeKind = "resolved"
)

// Notice is a parsed iTop status-change webhook.
type Notice struct {
	Kind         NoticeKind
	Thread       ThreadKey
	Link         string
	TicketRef    string
	AssigneeName string
}
