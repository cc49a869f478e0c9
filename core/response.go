package core

// ResponseKind discriminates the Response union.
type ResponseKind string

const (
	// ResponseThinking is an advisory progress signal with no payload.
	ResponseThinking ResponseKind = "thinking"
	// ResponseMessage carries the reply text.
	ResponseMessage ResponseKind = "message"
	// ResponseError reports a failed chat. Only emitted when the dispatcher is
	// configured to report errors; otherwise failures produce no response.
	ResponseError ResponseKind = "error"
)

// Response is an outbound signal for a session. There is no "stop thinking"
// kind: cessation is implied by the terminal Message.
type Response struct {
	Kind    ResponseKind `json:"kind"`
	Content string       `json:"content,omitempty"`
}

// Thinking returns a progress signal.
func Thinking() Response { return Response{Kind: ResponseThinking} }

// Message returns a reply carrying content.
func Message(content string) Response { return Response{Kind: ResponseMessage, Content: content} }

// Failure returns an error response describing err.
func Failure(err error) Response {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
	}
	return Response{Kind: ResponseError, Content: msg}
}

// IsThinking reports whether r is a progress signal.
func (r Response) IsThinking() bool { return r.Kind == ResponseThinking }

// Outbound pairs a response with the session it belongs to.
type Outbound struct {
	Session  SessionID `json:"session"`
	Response Response  `json:"response"`
}
