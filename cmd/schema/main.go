// Command schema writes the JSON schema of the amqconsole config file: server, remote broker
// API, per-feature refresh intervals, statistics history and view settings. The embedded copy
// in pkg/config is used to reject config keys the schema does not describe.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/kenliao94/amqconsole/pkg/config"
)

type opts struct {
	Output string `short:"o" long:"output" default:"-" description:"schema file, - for stdout"`
}

func main() {
	var o opts
	if _, err := flags.Parse(&o); err != nil {
		os.Exit(1)
	}

	schema, err := config.GenerateSchema()
	if err != nil {
		lgr.Fatalf("can't generate schema, %v", err)
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		lgr.Fatalf("can't marshal schema, %v", err)
	}
	data = append(data, '\n')

	if o.Output == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			lgr.Fatalf("can't write schema, %v", err)
		}
		return
	}
	if err := os.WriteFile(o.Output, data, 0o644); err != nil { //nolint:gosec // checked-in file, world readable
		lgr.Fatalf("can't write %s, %v", o.Output, err)
	}
	fmt.Fprintf(os.Stderr, "schema written to %s\n", o.Output)
}
