// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// Version is stamped at build time via -ldflags.
var Version = "1.0.0"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("NODEX_PRETTY_LOG") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	app := &cli.App{
		Name:    "nodex",
		Usage:   "self-sovereign identity edge agent",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the agent configuration file",
			},
		},
		// No subcommand runs the agent.
		Action: func(c *cli.Context) error {
			return runAgent(c)
		},
		Commands: []*cli.Command{
			{
				Name:  "controller",
				Usage: "run the supervisor that launches and updates the agent",
				Action: func(c *cli.Context) error {
					return runController(c)
				},
			},
			{
				Name:  "did",
				Usage: "print this device's DID",
				Action: func(c *cli.Context) error {
					return runPrintDID(c)
				},
			},
			{
				Name:  "network",
				Usage: "inspect or change network configuration",
				Subcommands: []*cli.Command{
					{
						Name:  "set",
						Usage: "set a network configuration value",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true},
							&cli.StringFlag{Name: "value", Aliases: []string{"v"}, Required: true},
						},
						Action: func(c *cli.Context) error {
							return runNetworkSet(c, c.String("key"), c.String("value"))
						},
					},
					{
						Name:  "get",
						Usage: "get a network configuration value",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true},
						},
						Action: func(c *cli.Context) error {
							return runNetworkGet(c, c.String("key"))
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
