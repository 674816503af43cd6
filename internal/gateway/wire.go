package gateway

import "encoding/json"

// Request is one correlated call from a client. Every request carries an id;
// frames without an id are server-pushed events, never responses.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes carried alongside error responses.
const (
	CodeBadRequest   = "bad_request"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeTeamArchived = "team_archived"
	CodeInvalidState = "invalid_state"
	CodeInternal     = "internal"
)

type Response struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func success(id string, data any) Response {
	return Response{ID: id, Status: StatusSuccess, Data: data}
}

func failure(id, code, message string) Response {
	return Response{ID: id, Status: StatusError, Code: code, Message: message}
}
