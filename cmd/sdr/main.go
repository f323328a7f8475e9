// Command sdr drafts cold sales emails with a team of agents and sends the best one.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hal9000y/sdr/internal/logger"
)

func main() {
	err := newApp().Run(os.Args)
	logger.Sync()
	if err != nil {
		if errors.Is(err, errReported) {
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(os.Stderr, "✗ Error: %v\n", err)
		os.Exit(1)
	}
}
