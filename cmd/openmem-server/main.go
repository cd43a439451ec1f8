package main

import (
	"flag"
	"os"

	"github.com/openmem/openmem-server/memoryserver"
)

func main() {
	// Optional build-target flag override (local | cloud-dev | cloud)
	buildTarget := flag.String("build-target", "", "Override OPENMEM_BUILD_TARGET (local, cloud-dev, cloud)")
	flag.Parse()

	if *buildTarget != "" {
		_ = os.Setenv("OPENMEM_BUILD_TARGET", *buildTarget)
	}

	if err := memoryserver.Run(); err != nil {
		os.Exit(1)
	}
}
