// Command montecarlo runs the producer, workers and monitor of a
// distributed Monte Carlo simulation sharing one SQLite broker.
package main

import (
	"fmt"
	"os"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
