// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package igfscfg declares the daemon's configuration surface and binds it
// to command-line flags plus an optional YAML config file, using the usual
// viper/pflag shape for mount-style flags.
package igfscfg

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for one igfsd node.
type Config struct {
	Name string `yaml:"name"`

	Mode    ModeConfig    `yaml:"mode"`
	Cluster ClusterConfig `yaml:"cluster"`
	Data    DataConfig    `yaml:"data"`
	Logging LoggingConfig `yaml:"logging"`
}

type ModeConfig struct {
	Default      string            `yaml:"default"`
	Prefixes     map[string]string `yaml:"prefixes"`
	SecondaryDir string            `yaml:"secondary-dir"`
}

type ClusterConfig struct {
	BindAddr string   `yaml:"bind-addr"`
	BindPort int      `yaml:"bind-port"`
	Seeds    []string `yaml:"seeds"`
}

type DataConfig struct {
	BlockSizeBytes   int   `yaml:"block-size-bytes"`
	MaxSpaceBytes    int64 `yaml:"max-space-bytes"`
	PrefetchBlocks   int   `yaml:"prefetch-blocks"`
	SequentialThresh int   `yaml:"sequential-read-threshold"`
}

type LoggingConfig struct {
	Format   string `yaml:"format"`
	Severity string `yaml:"severity"`
	File     string `yaml:"file"`
}

// BindFlags registers every flag in flagSet and binds it to viper under the
// matching dotted key via the usual BindPFlag pattern.
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key string) error {
		return viper.BindPFlag(key, flagSet.Lookup(key))
	}

	flagSet.String("name", "", "This node's cluster-unique name.")
	if err := bind("name"); err != nil {
		return err
	}

	flagSet.String("mode.default", "PRIMARY", "Default routing mode: PRIMARY, PROXY, DUAL_SYNC, DUAL_ASYNC.")
	if err := bind("mode.default"); err != nil {
		return err
	}

	flagSet.String("mode.secondary-dir", "", "Local directory backing the secondary file system. Empty disables it.")
	if err := bind("mode.secondary-dir"); err != nil {
		return err
	}

	flagSet.String("cluster.bind-addr", "0.0.0.0", "Address the gossip membership protocol binds to.")
	if err := bind("cluster.bind-addr"); err != nil {
		return err
	}

	flagSet.Int("cluster.bind-port", 7946, "Port the gossip membership protocol binds to.")
	if err := bind("cluster.bind-port"); err != nil {
		return err
	}

	flagSet.StringSlice("cluster.seeds", nil, "Addresses of existing cluster members to join.")
	if err := bind("cluster.seeds"); err != nil {
		return err
	}

	flagSet.Int("data.block-size-bytes", 1<<16, "Default block size assigned to new files.")
	if err := bind("data.block-size-bytes"); err != nil {
		return err
	}

	flagSet.Int64("data.max-space-bytes", 0, "Local space ceiling, in bytes. 0 means unbounded.")
	if err := bind("data.max-space-bytes"); err != nil {
		return err
	}

	flagSet.Int("data.prefetch-blocks", 4, "Blocks to read ahead once a read stream is detected sequential.")
	if err := bind("data.prefetch-blocks"); err != nil {
		return err
	}

	flagSet.Int("data.sequential-read-threshold", 2, "Consecutive sequential reads before prefetching kicks in.")
	if err := bind("data.sequential-read-threshold"); err != nil {
		return err
	}

	flagSet.String("logging.format", "json", "Log encoding: json or text.")
	if err := bind("logging.format"); err != nil {
		return err
	}

	flagSet.String("logging.severity", "INFO", "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err := bind("logging.severity"); err != nil {
		return err
	}

	flagSet.String("logging.file", "", "Log file path. Empty logs to stderr.")
	if err := bind("logging.file"); err != nil {
		return err
	}

	return nil
}

// Validate rejects configuration combinations the daemon cannot start
// with, failing fast at startup.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("igfscfg: name must not be empty")
	}
	if c.Data.BlockSizeBytes <= 0 {
		return fmt.Errorf("igfscfg: data.block-size-bytes must be positive")
	}
	if c.Data.PrefetchBlocks < 0 {
		return fmt.Errorf("igfscfg: data.prefetch-blocks must not be negative")
	}
	if c.Data.SequentialThresh < 0 {
		return fmt.Errorf("igfscfg: data.sequential-read-threshold must not be negative")
	}
	return nil
}

// Load reads flagSet-bound viper state (plus cfgFile if non-empty) into a
// Config.
func Load(cfgFile string) (Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("igfscfg: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("igfscfg: unmarshal: %w", err)
	}
	return cfg, nil
}
