package types

// Result is returned by every backend operation. The same shape is also
// carried in error events, mirroring what the controlling UI expects.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Ok(message string) Result {
	return Result{Success: true, Message: message}
}

func Fail(errMsg string) Result {
	return Result{Success: false, Error: errMsg}
}
