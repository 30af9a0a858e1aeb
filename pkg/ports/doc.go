/*
Package ports defines the driven ports (interfaces) of the abyss client.

These interfaces decouple the interaction core from the rendering engine and the
remote optimization service, so the same binding layer and orchestrator can run
against a real scene graph, an in-memory scene, an HTTP transport or a fake.

# Key Interfaces

  - Renderer: Creates and destroys visual glyphs for markers.
  - ResultSink: Receives the optimized mesh bytes once a job completes.
  - Transport: Submits jobs, streams progress and downloads results.
  - JobStore: Persists job records for the development optimization service.
*/
package ports
