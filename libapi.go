package glasswing

import (
	runtimepkg "github.com/glasswing/glasswing/internal/runtime"
	configpkg "github.com/glasswing/glasswing/internal/runtime/config"
	genstubpkg "github.com/glasswing/glasswing/internal/runtime/genstub"
	idspkg "github.com/glasswing/glasswing/internal/runtime/ids"
	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
	marshalpkg "github.com/glasswing/glasswing/internal/runtime/marshal"
	schemapkg "github.com/glasswing/glasswing/internal/runtime/schema"
	transportpkg "github.com/glasswing/glasswing/internal/runtime/transport"
)

type (
	Config           = configpkg.Config
	Bridge           = runtimepkg.Bridge
	Dependencies     = runtimepkg.Dependencies
	Transport        = transportpkg.Transport
	TransportFactory = transportpkg.Factory

	Frontend    = runtimepkg.Frontend
	PendingCall = runtimepkg.PendingCall

	EventBus     = runtimepkg.EventBus
	EventHandler = runtimepkg.EventHandler

	Envelope     = runtimepkg.Envelope
	CallRequest  = runtimepkg.CallRequest
	CallResponse = runtimepkg.CallResponse
	Failure      = runtimepkg.Failure
	ErrorKind    = runtimepkg.ErrorKind

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	CallContext = runtimepkg.CallContext
	CallHooks   = runtimepkg.CallHooks

	BindingInfo = runtimepkg.BindingInfo
	CallStats   = runtimepkg.CallStats

	Schema       = schemapkg.Schema
	Service      = schemapkg.Service
	Method       = schemapkg.Method
	TypeRef      = schemapkg.TypeRef
	StructSchema = schemapkg.StructSchema
	EnumSchema   = schemapkg.EnumSchema
	EnumValue    = schemapkg.EnumValue
	Field        = schemapkg.Field
	TypeRegistry = schemapkg.Registry
	SchemaError  = schemapkg.SchemaError

	MarshalOptions        = marshalpkg.Options
	TypeMismatchError     = marshalpkg.TypeMismatchError
	UnknownEnumValueError = marshalpkg.UnknownEnumValueError

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

const (
	KindCallRequest  = runtimepkg.KindCallRequest
	KindCallResponse = runtimepkg.KindCallResponse
	KindEvent        = runtimepkg.KindEvent

	ErrorKindServiceNotFound  = runtimepkg.ErrorKindServiceNotFound
	ErrorKindMethodNotFound   = runtimepkg.ErrorKindMethodNotFound
	ErrorKindArgument         = runtimepkg.ErrorKindArgument
	ErrorKindTypeMismatch     = runtimepkg.ErrorKindTypeMismatch
	ErrorKindUnknownEnumValue = runtimepkg.ErrorKindUnknownEnumValue
	ErrorKindBackend          = runtimepkg.ErrorKindBackend
	ErrorKindInternal         = runtimepkg.ErrorKindInternal
)

var (
	NewBridge      = runtimepkg.NewBridge
	TryNewBridge   = runtimepkg.TryNewBridge
	NewFrontend    = runtimepkg.NewFrontend
	ValidateConfig = configpkg.ValidateConfig

	NewTypeRegistry = schemapkg.NewRegistry

	GenerateStubs = genstubpkg.Generate

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogEnvelopesMiddleware  = runtimepkg.LogEnvelopesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	LoggingHooks = runtimepkg.LoggingHooks
	MetricsHooks = runtimepkg.MetricsHooks

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NopLogger            = loggingpkg.Nop

	CreateULID = idspkg.CreateULID

	Encode = marshalpkg.Encode
	Decode = marshalpkg.Decode

	RegisterTransport = transportpkg.Register
	TransportNames    = transportpkg.Names
	StaticTransport   = transportpkg.Static
	NewPipe           = transportpkg.NewPipe
	NewWebSocket      = transportpkg.NewWebSocket
)
