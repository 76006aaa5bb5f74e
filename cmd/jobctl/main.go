// Command jobctl is the operator tool for the inference job store: schema
// migration, job inspection and re-publishing of stuck jobs.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
