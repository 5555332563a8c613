// This program performs administrative tasks for the dpos node.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/dpos/app/tooling/admin/commands"
	"github.com/ardanlabs/dpos/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	log.Infow("startup", "version", build)

	return processCommands(os.Args)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: admin genesis|schedule|chain ...")
	}

	switch args[1] {
	case "genesis":
		if err := commands.Genesis(args); err != nil {
			return fmt.Errorf("writing genesis: %w", err)
		}
	case "schedule":
		if err := commands.Schedule(args); err != nil {
			return fmt.Errorf("printing schedule: %w", err)
		}
	case "chain":
		if err := commands.Chain(args); err != nil {
			return fmt.Errorf("printing chain: %w", err)
		}
	default:
		return fmt.Errorf("unknown command %q", args[1])
	}

	return nil
}
