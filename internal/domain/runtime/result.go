package runtime

import "net/http"

// Result is the uniform outcome of every routed operation: Message becomes
// the response body and Code the HTTP status.
type Result struct {
	Message string
	Code    int
}

// OK reports whether the result carries a 2xx status.
func (r Result) OK() bool {
	return r.Code >= 200 && r.Code < 300
}

const (
	MessageSuccess        = "Success"
	MessageFailed         = "Failed"
	MessageAlive          = "Alive"
	MessageNotImplemented = "Not yet implemented"
	MessageNoApp          = "No App Found"
	MessageInvalidCommand = "Invalid command"
	MessageNotFound       = "Not Found Entry"
)

// Canonical results. Each error kind maps to exactly one of them.
var (
	Success = Result{Message: MessageSuccess, Code: http.StatusOK}
	Alive   = Result{Message: MessageAlive, Code: http.StatusOK}

	// OperationFailed covers loader and app-reported failures.
	OperationFailed = Result{Message: MessageFailed, Code: http.StatusInternalServerError}
	Unimplemented   = Result{Message: MessageNotImplemented, Code: http.StatusInternalServerError}
	NoAppInstalled  = Result{Message: MessageNoApp, Code: http.StatusInternalServerError}
	InvalidCommand  = Result{Message: MessageInvalidCommand, Code: http.StatusInternalServerError}
	NotFound        = Result{Message: MessageNotFound, Code: http.StatusNotFound}
)

// Transport-level results produced before a request reaches the router.
var (
	BadRequest      = Result{Message: "Bad Request", Code: http.StatusBadRequest}
	PayloadTooLarge = Result{Message: "Payload Too Large", Code: http.StatusRequestEntityTooLarge}
	TooManyRequests = Result{Message: "Too Many Requests", Code: http.StatusTooManyRequests}
)

// Ok wraps a payload in a 200 result.
func Ok(message string) Result {
	return Result{Message: message, Code: http.StatusOK}
}
