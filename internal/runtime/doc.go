/*
Package runtime provides the core bridge infrastructure for glasswing.

# Architecture Overview

The runtime package implements a call-and-event bridge built on top of
Watermill. A single ordered consumer drains the backend topic; call requests
fan out to per-call goroutines so responses complete out of order, while
events are delivered inline to preserve per-side emission order.

# Package Structure

The runtime package is organized into the following components:

## Core Bridge (bridge.go, binding.go)

The Bridge struct is the central orchestrator that wires together:
  - Message router (Watermill)
  - Transport publisher and subscriber
  - Middleware chain
  - Bound services and their extracted schemas
  - HTTP servers for metrics and dev tooling

## Dispatch (dispatcher.go, envelope.go)

The dispatcher resolves a call request against the bound services, decodes
each argument against its schema type, invokes the backend method, and
produces exactly one correlated response. All failure modes reduce to the
Failure kinds in envelope.go.

## Events (eventbus.go)

EventBus carries fire-and-forget notifications in one direction. Delivery is
at-most-once with no replay.

## Frontend Harness (frontend.go)

Frontend is the surface-side counterpart used by Go hosts and tests. It
multiplexes concurrent calls over the shared channel and correlates
responses by ID.

## Subpackages

  - schema: type extraction and the closed type-shape set
  - marshal: schema-directed encoding and decoding
  - genstub: JavaScript stub generation
  - transport: channel, pipe, and websocket transports
  - config, logging, errors, ids, jsoncodec: ambient plumbing
*/
package runtime
