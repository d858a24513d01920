// Package session houses implementations of core.CheckpointStore, the store
// a suspended graph invocation waits in until it is resumed or cleared.
//
// Only a volatile in-memory backend exists; conversation state does not
// survive a process restart.
package session
