package invoice

import (
	"errors"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/fiscal"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

const (
	MessageQueued   = "saved locally, queued for fiscal submission"
	MessageSynced   = "fiscalized"
	MessageRetrying = "network error, queued for retry"
)

// Contact is what one sync attempt learned about the authority's reachability.
type Contact int

const (
	// ContactNone means nothing was sent.
	ContactNone Contact = iota
	ContactReached
	ContactUnreachable
)

// Reached reports reachability, or nil when the attempt never touched the network.
func (c Contact) Reached() *bool {
	var v bool
	switch c {
	case ContactReached:
		v = true
	case ContactUnreachable:
		v = false
	default:
		return nil
	}
	return &v
}

// Outcome is the state an invoice moves to after one submission attempt.
type Outcome struct {
	Status   model.SyncStatus
	FiscalID *string
	Message  string
	Raw      *string
	At       time.Time
	Contact  Contact
}

// Decide maps a submission result onto the next sync state. Only a recognised
// transport failure keeps the invoice PENDING; anything unexpected is FAILED.
func Decide(resp *fiscal.Response, err error, at time.Time) Outcome {
	if err == nil {
		if resp == nil || resp.FiscalID == "" {
			return Outcome{Status: model.SyncStatusFailed, Message: "authority response carried no fiscal id", At: at, Contact: ContactReached}
		}
		id, raw := resp.FiscalID, resp.Raw
		return Outcome{Status: model.SyncStatusSynced, FiscalID: &id, Message: MessageSynced, Raw: &raw, At: at, Contact: ContactReached}
	}

	var fe *fiscal.Error
	if !errors.As(err, &fe) {
		return Outcome{Status: model.SyncStatusFailed, Message: "unexpected error: " + err.Error(), At: at}
	}

	var raw *string
	if fe.Raw != "" {
		r := fe.Raw
		raw = &r
	}

	switch fe.Kind {
	case fiscal.KindTransport:
		return Outcome{Status: model.SyncStatusPending, Message: MessageRetrying + ": " + fe.Message, Raw: raw, At: at, Contact: ContactUnreachable}
	case fiscal.KindProtocol:
		return Outcome{Status: model.SyncStatusFailed, Message: "rejected by authority: " + fe.Message, Raw: raw, At: at, Contact: ContactReached}
	case fiscal.KindEchoAnomaly:
		return Outcome{Status: model.SyncStatusFailed, Message: "echo anomaly: " + fe.Message, Raw: raw, At: at, Contact: ContactReached}
	case fiscal.KindInvalid:
		return Outcome{Status: model.SyncStatusFailed, Message: "not submitted: " + fe.Error(), At: at}
	default:
		return Outcome{Status: model.SyncStatusFailed, Message: "unclassified fiscal error: " + fe.Error(), Raw: raw, At: at}
	}
}
