// Command apitypes compiles API documents into typed contract files.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/codecup-codeday/rctf-spooky/internal/cli"
)

func main() {
	err := cli.Execute()
	// Compile errors have already been reported in full.
	if err != nil && !errors.Is(err, cli.ErrCompile) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
