package vle

import (
	"github.com/nsm120/vle/config"
	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/observation"
)

// strategies.go consolidates the kernel's primary extension-point types for
// easier discovery: implement Dynamics to define a model's behavior,
// implement Stream to define where observations go.

// Dynamics is the behavior every atomic model implements: the seven DEVS
// transition/output functions plus the observation accessor (spec.md §4.1).
// Re-exported here so embedding callers implementing a new model type don't
// need to import the dynamics package directly.
type Dynamics = dynamics.Dynamics

// Stream is the sink every output view writes observations to (spec.md
// §4.7). Re-exported here alongside Dynamics for discoverability.
type Stream = observation.Stream

// StreamBuilder constructs a fresh Stream for a view; see WithStream.
type StreamBuilder = config.StreamBuilder
