// Package main is the entry point of nfvacct, the OSM accounting reconciler.
//
// nfvacct consumes OSM lifecycle notifications and VNF telemetry, keeps a
// local record of deployed network services, and mirrors their lifetime and
// resource consumption into the billing backend as sessions.
//
// Example usage:
//
//	# Run consumers, aggregator and the ops server
//	nfvacct serve --config=/etc/nfvacct/config.yaml
//
//	# Run a single aggregation sweep
//	nfvacct aggregate
//
//	# Override settings from the environment
//	export NFVACCT_BILLING_HOST=billing.example.com
//	nfvacct serve
package main

import (
	"fmt"
	"os"
)

// Version is the application version (set via build flags).
var Version = "0.1.0"

// ServiceName is the name of this service.
const ServiceName = "nfvacct"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
