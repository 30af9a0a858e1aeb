/*
Package abyss is a topology optimization workbench: it turns clicks on an STL solid into fixed supports and loads, submits them to an optimization service and brings the optimized mesh back.

It keeps the interactive model (markers, their on-screen glyphs and the job lifecycle) separate from the renderer and from the transport, so the same Workbench drives a 3D viewport, a scripted scenario or a test.

# Concept

A Workbench owns three pieces. The marker store is the single source of truth for placed supports and loads. The binding layer keeps one renderer glyph per marker and answers "which marker did this click hit?". The orchestrator runs one remote job at a time through a Transport and feeds its progress and result back.

# Key Features

  - Click to place: surface hits create a marker of the active Mode, marker hits remove it.
  - Single active job: progress streams over SSE, cancel and reset are always safe.
  - Typed failures: validation, submit, stream and result-fetch errors are kept apart on the Job.
  - Pluggable edges: ports.Renderer, ports.ResultSink and ports.Transport are interfaces.

# Usage

	package main

	import (
		"context"
		"log"
		"os"

		"github.com/aretw0/abyss"
		httpAdapter "github.com/aretw0/abyss/pkg/adapters/http"
		"github.com/aretw0/abyss/pkg/domain"
	)

	func main() {
		wb := abyss.New(httpAdapter.NewClient("http://localhost:8000"))
		defer wb.Close()

		stl, err := os.ReadFile("bracket.stl")
		if err != nil {
			log.Fatal(err)
		}
		if err := wb.LoadMesh(stl); err != nil {
			log.Fatal(err)
		}

		// Clamp the left face, push on the right one.
		wb.SetMode(domain.ModeFixed)
		wb.Click(domain.V(-5, 0.3, 0.1), domain.V(1, 0, 0))
		wb.SetMode(domain.ModeLoad)
		wb.Click(domain.V(5, 0.6, 0.1), domain.V(-1, 0, 0))

		ctx := context.Background()
		if err := wb.Run(ctx); err != nil {
			log.Fatal(err)
		}
		job, err := wb.Wait(ctx)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("job", job.ID, "ended", job.State)
	}
*/
package abyss
