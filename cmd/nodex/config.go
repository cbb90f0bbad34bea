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
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/nodecross/nodex/utils"
)

// Paths is the fixed on-disk layout of the agent: config under the
// user config dir, runtime state (socket, bundle staging) and backups under
// ~/.nodex.
type Paths struct {
	ConfigDir   string
	KeystoreDir string
	NetworkFile string
	RuntimeDir  string
	SocketPath  string
	BundlesDir  string
	BackupsDir  string
	WorkDir     string
}

func defaultPaths() Paths {
	home := utils.UserHomeDir()
	configDir := filepath.Join(home, ".config", "nodex")
	runtimeDir := filepath.Join(home, ".nodex", "run")
	return Paths{
		ConfigDir:   configDir,
		KeystoreDir: filepath.Join(configDir, "keys"),
		NetworkFile: filepath.Join(configDir, "network.json"),
		RuntimeDir:  runtimeDir,
		SocketPath:  filepath.Join(runtimeDir, "nodex.sock"),
		BundlesDir:  filepath.Join(runtimeDir, "bundles"),
		BackupsDir:  filepath.Join(home, ".nodex", "backups"),
		WorkDir:     filepath.Join(home, ".nodex"),
	}
}

// loadConfig merges the YAML config file (when present) with NODEX_*
// environment overrides into one koanf instance. Values are handed to
// constructors as plain Go values; no package-level config globals.
func loadConfig(configPath string, paths Paths) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = filepath.Join(paths.ConfigDir, "config.yaml")
	} else {
		configPath = utils.ExpandHome(configPath)
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// NODEX_DID_HOST=x.example.com becomes did.host.
	err := k.Load(env.Provider("NODEX_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "NODEX_")), "_", ".")
	}), nil)
	if err != nil {
		return nil, err
	}

	return k, nil
}

func ensureDirs(paths Paths) error {
	for _, dir := range []string{paths.ConfigDir, paths.KeystoreDir, paths.RuntimeDir, paths.BundlesDir, paths.BackupsDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}

func keystorePassphrase(k *koanf.Koanf) []byte {
	if p := k.String("keystore.passphrase"); p != "" {
		return []byte(p)
	}
	// With no passphrase configured a fixed default is used; the keystore
	// then only protects against casual inspection.
	return []byte("nodex")
}
