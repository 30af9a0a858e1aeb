package abyss_test

import (
	"context"
	"fmt"
	"log"
	"net/http/httptest"

	"github.com/aretw0/abyss"
	httpAdapter "github.com/aretw0/abyss/pkg/adapters/http"
	"github.com/aretw0/abyss/pkg/adapters/memory"
	"github.com/aretw0/abyss/pkg/devserver"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/mesh"
)

// ExampleWorkbench demonstrates a full run against an in-process
// development service.
func ExampleWorkbench() {
	svc := devserver.New(memory.NewStore())
	srv := httptest.NewServer(httpAdapter.NewHandler(svc))
	defer srv.Close()

	wb := abyss.New(httpAdapter.NewClient(srv.URL), abyss.WithSolverConfig(domain.SolverConfig{
		Nelx: 8, Nely: 4, Nelz: 4, Penal: 3, Rmin: 1.5, VolumeFraction: 0.3, MaxIterations: 20, Tolx: 0.01,
	}))
	defer wb.Close()

	stl, err := mesh.Box(domain.V(0, 0, 0), domain.V(3, 1, 1)).Encode()
	if err != nil {
		log.Fatal(err)
	}
	if err := wb.LoadMesh(stl); err != nil {
		log.Fatal(err)
	}

	wb.SetMode(domain.ModeFixed)
	wb.Click(domain.V(-5, 0.3, 0.1), domain.V(1, 0, 0))
	wb.SetMode(domain.ModeLoad)
	wb.Click(domain.V(5, 0.6, 0.1), domain.V(-1, 0, 0))
	fmt.Println("markers:", wb.Markers().Len())

	ctx := context.Background()
	if err := wb.Run(ctx); err != nil {
		log.Fatal(err)
	}
	job, err := wb.Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("state:", job.State)

	// Output:
	// markers: 2
	// state: complete
}
