package utils

import (
	"os"

	"github.com/openflock/flockbase/utils/dotenv"
	. "github.com/openflock/flockbase/utils/flag"
	Logger "github.com/openflock/flockbase/utils/log"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// StartTracer must run after ParseFlags so the spans carry the right service
// name. One-shot cli runs skip it; only the daemon traces.
func StartTracer() {
	// Datadog tracer

	env := "development"
	if os.Getenv("FLOCKBASE_ENV") == dotenv.ProdEnv {
		env = "production"
	}

	tracer.Start(
		tracer.WithService(ServiceName),
		tracer.WithEnv(env),
	)

	Logger.Log.Info("tracer initialized")
}

// Stop tracer, OK to be closed multiple times
func CloseTracer() {
	// Datadog tracer
	tracer.Stop()
}
