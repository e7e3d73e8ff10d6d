// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Main entrypoint for nrmos application

package main

import (
	"fmt"
	"os"

	"github.com/evolution-gaming/nrmos/internal/logging"
)

const usage = `nrmos - No-reference MOS estimation

Usage:

    nrmos <command> [arguments] [-h|--help]

The commands are:

    assess      estimate MOS of a single video file
    run         batch assess videos according to "assessment plan"
    scoreplot   create plot from per-frame scores JSON
    new-plan    create assessment plan template
    dump-conf   output actual application configuration
    version     print nrmos version and exit

Use "nrmos <command> -h|--help" for more information about command.`

// root represents top level of nrmos command, including dispatching to subcommands.
func root(args []string) error {
	if len(args) < 1 {
		fmt.Println(usage)
		return &AppError{msg: "please, specify command", exitCode: 2}
	}

	switch args[0] {
	case "assess":
		return CreateAssessCommand().Run(args[1:])
	case "run":
		return CreateRunCommand().Run(args[1:])
	case "scoreplot":
		return CreateScorePlotCommand().Run(args[1:])
	case "new-plan":
		return CreateNewPlanCommand().Run(args[1:])
	case "dump-conf", "dump":
		return CreateDumpConfCommand().Run(args[1:])
	case "version":
		printVersion(os.Stdout)
		return nil
	case "-h", "-help", "--help", "?":
		fmt.Println(usage)
		return &AppError{
			exitCode: 2,
		}
	default:
		// No commands were matched at this point, so bail out with default usage message.
		fmt.Println(usage)
		return &AppError{
			msg:      "unknown command/flag",
			exitCode: 2,
		}
	}
}

func main() {
	// Enable info logger by default and early enough.
	logging.EnableInfoLogger()

	if err := root(os.Args[1:]); err != nil {
		if err.Error() != "" {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		switch e := err.(type) {
		case *AppError:
			os.Exit(e.ExitCode())
		default:
			os.Exit(1)
		}
	}
	os.Exit(0)
}
