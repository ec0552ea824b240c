package runtime

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/glasswing/glasswing/internal/runtime/ids"
	"github.com/glasswing/glasswing/internal/runtime/jsoncodec"
)

// Envelope kinds. Every frame on the transport is one of these.
const (
	KindCallRequest  = "call-request"
	KindCallResponse = "call-response"
	KindEvent        = "event"
)

const metadataEnvelopeKind = "envelope_kind"

// Envelope is the direction-agnostic wire shape shared by both sides of the
// bridge. ID correlates a call-request with its call-response and is absent
// for events.
type Envelope struct {
	Kind      string            `json:"kind"`
	ID        string            `json:"id,omitempty"`
	Service   string            `json:"service,omitempty"`
	Method    string            `json:"method,omitempty"`
	Args      []json.RawMessage `json:"args,omitempty"`
	Success   *bool             `json:"success,omitempty"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Error     *Failure          `json:"error,omitempty"`
	EventName string            `json:"eventName,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}

// ErrorKind classifies a call failure so frontend code can branch on it.
type ErrorKind string

const (
	ErrorKindServiceNotFound  ErrorKind = "ServiceNotFound"
	ErrorKindMethodNotFound   ErrorKind = "MethodNotFound"
	ErrorKindArgument         ErrorKind = "ArgumentError"
	ErrorKindTypeMismatch     ErrorKind = "TypeMismatch"
	ErrorKindUnknownEnumValue ErrorKind = "UnknownEnumValue"
	ErrorKindBackend          ErrorKind = "BackendError"
	ErrorKindInternal         ErrorKind = "InternalError"
)

// Failure is the structured failure descriptor carried in a call-response.
// BackendError marks the method's own declared failure; every other kind
// originates in the bridge.
type Failure struct {
	Kind    ErrorKind `json:"errorKind"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// CallRequest is one frontend-initiated call. It is constructed by a stub,
// consumed exactly once by the dispatcher, and produces exactly one
// CallResponse.
type CallRequest struct {
	ID      string
	Service string
	Method  string
	Args    []json.RawMessage
}

// CallResponse carries either the encoded success payload or a failure
// descriptor, never both, correlated to its request by ID.
type CallResponse struct {
	ID      string
	Result  json.RawMessage
	Failure *Failure
}

func (e *Envelope) toCallRequest() *CallRequest {
	return &CallRequest{ID: e.ID, Service: e.Service, Method: e.Method, Args: e.Args}
}

func (r *CallResponse) envelope() *Envelope {
	ok := r.Failure == nil
	return &Envelope{
		Kind:    KindCallResponse,
		ID:      r.ID,
		Success: &ok,
		Result:  r.Result,
		Error:   r.Failure,
	}
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := jsoncodec.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Envelope) toMessage() (*message.Message, error) {
	payload, err := jsoncodec.Marshal(e)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata.Set(metadataEnvelopeKind, e.Kind)
	if e.ID != "" {
		msg.Metadata.Set("correlation_id", e.ID)
	}
	return msg, nil
}
