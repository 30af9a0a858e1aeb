/*
Package domain contains the plain data records shared by every other package:
boundary-condition markers, solver configuration, the optimization job and its
progress snapshot, and the result of a pointer hit test.

It is kept free of I/O. Behavior is limited to value helpers (vector math,
validation) so the records can be passed freely between the binding layer,
the orchestrator and the transport adapters.

# Key Entities

  - Marker: FixedSupport or LoadVector, identified by a MarkerID.
  - SolverConfig: grid resolution and SIMP parameters sent with a job.
  - Job: the client-side view of a remote run (JobState, ProgressSnapshot, error).
  - HitResult: Miss, Marker or Surface outcome of a ray test.
*/
package domain
