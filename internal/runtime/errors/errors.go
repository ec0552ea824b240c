package errors

import sterrors "errors"

var (
	ErrBridgeRequired      = sterrors.New("glasswing: bridge is required")
	ErrReceiverRequired    = sterrors.New("glasswing: binding receiver is required")
	ErrReceiverPointer     = sterrors.New("glasswing: binding receiver must be a pointer to a struct")
	ErrServiceNameRequired = sterrors.New("glasswing: service name is required")
	ErrNoMethodsExposed    = sterrors.New("glasswing: at least one method must be exposed")
	ErrAlreadyBound        = sterrors.New("glasswing: service name is already bound")
	ErrBridgeStarted       = sterrors.New("glasswing: bridge has already started")
	ErrPublisherRequired   = sterrors.New("glasswing: publisher is required")
	ErrEventNameRequired   = sterrors.New("glasswing: event name is required")
	ErrHandlerRequired     = sterrors.New("glasswing: handler function is required")
	ErrFrontendClosed      = sterrors.New("glasswing: frontend harness is closed")
)
