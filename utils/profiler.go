package utils

import (
	"os"

	"github.com/openflock/flockbase/utils/dotenv"
	. "github.com/openflock/flockbase/utils/flag"
	Logger "github.com/openflock/flockbase/utils/log"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"
)

// StartProfiler must run after ParseFlags, like StartTracer.
func StartProfiler() {
	// Datadog profiler

	env := "development"
	if os.Getenv("FLOCKBASE_ENV") == dotenv.ProdEnv {
		env = "production"
	}

	if err := profiler.Start(
		profiler.WithService(ServiceName),
		profiler.WithEnv(env),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
			// The profiles below are disabled by
			// default to keep overhead low, but
			// can be enabled as needed.
			// profiler.BlockProfile,
			// profiler.MutexProfile,
			// profiler.GoroutineProfile,
		),
	); err != nil {
		Logger.Log.Fatal(err)
	}
}

// Stop profiler, OK to be closed multiple times
func CloseProfiler() {
	// Datadog profiler
	profiler.Stop()
}
