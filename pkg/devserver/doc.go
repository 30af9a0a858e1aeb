/*
Package devserver implements a local stand-in for the remote optimization
service. It accepts the same parameters, validates them with the same bounds,
runs a synthetic solver in the background and keeps jobs in a ports.JobStore so
progress can be streamed and results downloaded over HTTP.

The synthetic solver is not a topology optimizer. It carves the design domain
along the straight load paths between supports and loads, which is enough to
exercise every client code path end to end.
*/
package devserver
