/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package
*/

package flag

import (
	"flag"
)

const (
	FetchCli  = "fetch_cli"
	JobDaemon = "job_daemon"
)

var (
	IsDevelopment bool
	ServiceName   string
)

func init() {
	flag.BoolVar(&IsDevelopment, "dev", true, "set to true if the current run is for development. default value is true")
	flag.StringVar(&ServiceName, "service", FetchCli, "'fetch_cli' or 'job_daemon'")
}

// ParseFlags should be called once at the top of main, after all packages had
// a chance to register their flags.
func ParseFlags() {
	flag.Parse()
}
