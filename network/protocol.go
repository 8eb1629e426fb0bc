package network

import "encoding/json"

// Envelope types on the wire.
const (
	MsgTypeResult = "result"
	MsgTypeEvent  = "event"
	MsgTypePing   = "ping"
	MsgTypePong   = "pong"
)

// Request is an inbound command. Args keeps the whole message so each
// command can decode its own fields next to id and type.
type Request struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	Args json.RawMessage `json:"-"`
}

// ParseRequest decodes the id and type of a raw message.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	req.Args = json.RawMessage(data)
	return &req, nil
}

// ErrorBody is the error half of a failed result.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response answers one Request.
type Response struct {
	ID      int64       `json:"id"`
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// NewResult builds a success response.
func NewResult(id int64, result interface{}) *Response {
	return &Response{ID: id, Type: MsgTypeResult, Success: true, Result: result}
}

// NewError builds a failure response.
func NewError(id int64, code, message string) *Response {
	return &Response{ID: id, Type: MsgTypeResult, Error: &ErrorBody{Code: code, Message: message}}
}

// EventBody carries one bus notification.
type EventBody struct {
	EventType  string          `json:"event_type"`
	InstanceID string          `json:"instance_id,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Event is pushed to subscribed connections without a request.
type Event struct {
	ID    int64     `json:"id,omitempty"`
	Type  string    `json:"type"`
	Event EventBody `json:"event"`
}
