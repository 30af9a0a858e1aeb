/*
Package orchestrator drives the single optimization job of a workbench through
submit, progress streaming, result download and cancellation.

The state machine itself is the pure Transition function. The Orchestrator wraps
it with the side effects: it calls the Transport without holding its lock, keeps
at most one progress subscription open and tags every run with a generation
number, so callbacks from a cancelled or superseded run are dropped.

Failures never escape as panics or unhandled errors. They end the job in the
Error state with a human readable message and an ErrorKind.
*/
package orchestrator
