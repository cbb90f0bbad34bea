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
	"context"
	"fmt"

	"github.com/nodecross/nodex/internal/httpapi"
	"github.com/nodecross/nodex/keyring"
	"github.com/urfave/cli/v2"
)

// runPrintDID prints the DID recorded by the last successful identity
// creation; it never creates one.
func runPrintDID(c *cli.Context) error {
	paths := defaultPaths()
	cfg, err := loadConfig(c.String("config"), paths)
	if err != nil {
		return cli.Exit(err, 1)
	}

	keystore, err := keyring.NewFileKeystore(paths.KeystoreDir, keystorePassphrase(cfg))
	if err != nil {
		return cli.Exit(err, 1)
	}
	ownerDID, err := keyring.LoadOwnerDID(context.Background(), keystore)
	if err != nil {
		return cli.Exit("no identifier created yet; start the agent first", 1)
	}
	fmt.Println(ownerDID)
	return nil
}

func runNetworkSet(c *cli.Context, key, value string) error {
	paths := defaultPaths()
	if err := ensureDirs(paths); err != nil {
		return cli.Exit(err, 1)
	}
	store, err := httpapi.LoadNetworkStore(paths.NetworkFile)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := store.Set(key, value); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func runNetworkGet(c *cli.Context, key string) error {
	paths := defaultPaths()
	store, err := httpapi.LoadNetworkStore(paths.NetworkFile)
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(store.Get(key))
	return nil
}
