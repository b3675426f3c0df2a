// Command meterflow ingests per-household energy-monitoring time
// series, repairs their cumulative meter counters, aligns device
// clocks, and maintains a fleet-level data-quality index.
package main

import (
	"fmt"
	"log"
	"os"
)

const usage = `usage: meterflow <command> [flags]

commands:
  process   validate, regularize and reconcile household tables
  align     align and merge device streams onto a shared clock
  report    render the fleet data-quality report
  migrate   manage the store schema
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(os.Args[2:])
	case "align":
		err = runAlign(os.Args[2:])
	case "report":
		err = runReport(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}
