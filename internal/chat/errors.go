package chat

import (
	"fmt"

	"intervox/internal/domain"
)

// NetworkError reports a failed transport call or a non-2xx status.
type NetworkError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("chat %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("chat %s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("chat %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("chat %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Code() domain.ErrorCode {
	return domain.ErrorCodeNetwork
}

// ProtocolError reports a reply the client could not interpret.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat protocol: %s: %v", e.Reason, e.Err)
	}
	return "chat protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Code() domain.ErrorCode {
	return domain.ErrorCodeProtocol
}
