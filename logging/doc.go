// Package logging provides a minimal logging interface and adapters for inboxmesh.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that graphs, agents and collaborators use for observability. This package
// includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - Helpers recording tool and inference call outcomes
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: logging.LogLevelInfo, Format: "json"})
//	g := graph.New("calendar", func(o *graph.Options) { o.Logger = logger })
//
// Messages are dotted event names ("graph.node.start") followed by key/value
// pairs.
package logging
