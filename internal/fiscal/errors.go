package fiscal

import (
	"errors"
	"fmt"
)

// Kind classifies a failed submission.
type Kind int

const (
	// KindTransport means the authority never processed the request. Safe to retry.
	KindTransport Kind = iota + 1
	// KindProtocol means the authority received and rejected the payload.
	KindProtocol
	// KindEchoAnomaly means the authority returned the submitted invoice number
	// instead of issuing a fiscal id. Treated as a rejection.
	KindEchoAnomaly
	// KindInvalid means the submission was refused locally and never sent.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindEchoAnomaly:
		return "echo_anomaly"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Raw        string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fiscal %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("fiscal %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or 0 when err is not a *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

func IsTransport(err error) bool {
	return KindOf(err) == KindTransport
}
