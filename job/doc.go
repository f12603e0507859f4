// Package job defines the stateful representation of a unit of work
// managed by the CPIO job lifecycle: its identity, its body, its status
// state machine and its timing metadata.
//
// A Job is a snapshot of authoritative storage state. It is returned by
// jobclient operations and passed back to them for state transitions; it
// is not intended to be constructed directly by user code outside tests
// and storage implementations.
package job
