// Copyright 2015 Google Inc. All Rights Reserved.
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

// Command igfsd runs one IGFS coordinator node, wiring the in-memory
// reference metadata/data managers and, if configured, a memberlist-backed
// cluster into a running igfs.Igfs and serving its operations until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/igfs-project/igfs/cluster"
	"github.com/igfs-project/igfs/data"
	"github.com/igfs-project/igfs/igfs"
	"github.com/igfs-project/igfs/igfscfg"
	"github.com/igfs-project/igfs/logging"
	"github.com/igfs-project/igfs/meta"
	"github.com/igfs-project/igfs/secondary"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
)

var rootCmd = &cobra.Command{
	Use:   "igfsd",
	Short: "Run one IGFS coordinator node",
	Long: `igfsd runs one node of an IGFS-style distributed in-memory
          hierarchical file system coordinator: metadata dispatch, optional
          secondary file system fallthrough, and cluster membership.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}

		cfg, err := igfscfg.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		return run(cmd.Context(), cfg)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the config file")
	bindErr = igfscfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	if _, err := os.Stat(cfgFile); err != nil {
		configFileErr = fmt.Errorf("resolving config file: %w", err)
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
	}
}

// run builds every collaborator from cfg and serves until ctx is canceled
// or a terminating signal arrives.
func run(ctx context.Context, cfg igfscfg.Config) error {
	logFactory := buildLogFactory(cfg.Logging)
	defer logFactory.Close()
	logging.Configure(logFactory)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defaultMode, err := igfs.ParseMode(cfg.Mode.Default)
	if err != nil {
		return err
	}

	var secondaryFS secondary.FS
	var mutableSecondary *secondary.LocalFS
	if cfg.Mode.SecondaryDir != "" {
		mutableSecondary, err = secondary.NewLocalFS(cfg.Mode.SecondaryDir)
		if err != nil {
			return fmt.Errorf("igfsd: secondary file system: %w", err)
		}
		secondaryFS = mutableSecondary
	}

	dataMgr := data.NewInMemory(uint32(cfg.Data.BlockSizeBytes), uint64(cfg.Data.MaxSpaceBytes))
	if err := dataMgr.AwaitInit(ctx); err != nil {
		return fmt.Errorf("igfsd: data manager: %w", err)
	}

	metadata := meta.NewStore(nil)
	if mutableSecondary != nil {
		metadata.SetDual(meta.NewSecondaryDelegate(mutableSecondary, metadata))
	}
	if err := metadata.AwaitInit(ctx); err != nil {
		return fmt.Errorf("igfsd: metadata manager: %w", err)
	}

	modePrefixes := make(map[string]igfs.Mode, len(cfg.Mode.Prefixes))
	for prefix, name := range cfg.Mode.Prefixes {
		mode, err := igfs.ParseMode(name)
		if err != nil {
			return fmt.Errorf("igfsd: mode.prefixes[%s]: %w", prefix, err)
		}
		modePrefixes[prefix] = mode
	}

	discovery, messaging, compute, closeCluster, err := buildCluster(cfg.Cluster, cfg.Name)
	if err != nil {
		return fmt.Errorf("igfsd: cluster: %w", err)
	}
	if closeCluster != nil {
		defer closeCluster()
	}

	fs, err := igfs.New(ctx, metadata, dataMgr, igfs.Config{
		Secondary:        secondaryFS,
		DefaultMode:      defaultMode,
		ModePrefixes:     modePrefixes,
		PrefetchBlocks:   cfg.Data.PrefetchBlocks,
		SequentialThresh: cfg.Data.SequentialThresh,
		Discovery:        discovery,
		Messaging:        messaging,
		Compute:          compute,
		LocalNodeId:      cfg.Name,
	})
	if err != nil {
		return fmt.Errorf("igfsd: %w", err)
	}

	logging.Infof("igfsd: node %q serving", cfg.Name)
	<-ctx.Done()
	logging.Infof("igfsd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return fs.Shutdown(shutdownCtx)
}

const shutdownTimeout = 30 * time.Second

func buildLogFactory(cfg igfscfg.LoggingConfig) *logging.Factory {
	if cfg.File == "" {
		return logging.NewFactory(cfg.Format, cfg.Severity, os.Stderr)
	}
	return logging.NewFileFactory(cfg.Format, cfg.Severity, cfg.File, 100, 5, 28)
}

// buildCluster wires a memberlist-backed DiscoveryService/Messaging when
// seeds are configured or the bind port is non-zero, and a LocalCompute
// ComputeService fanning out over the same membership. A node with no seeds
// and bind port 0 gets no discovery or messaging at all, which disables
// igfs.Igfs.Format: its cluster-wide purge confirmation has no peers to
// wait on.
func buildCluster(cfg igfscfg.ClusterConfig, nodeName string) (cluster.DiscoveryService, cluster.Messaging, cluster.ComputeService, func(), error) {
	if len(cfg.Seeds) == 0 && cfg.BindPort == 0 {
		return nil, nil, nil, nil, nil
	}

	mlCfg := memberlist.DefaultLocalConfig()
	mlCfg.Name = nodeName
	mlCfg.BindAddr = cfg.BindAddr
	mlCfg.BindPort = cfg.BindPort
	mlCfg.AdvertisePort = cfg.BindPort

	membership, err := cluster.NewMembership(mlCfg, map[string]string{cluster.IgfsNameAttr: nodeName}, cfg.Seeds)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	localId := membership.LocalNode().Id
	compute := cluster.NewLocalCompute(localId, func() []cluster.Node {
		all := membership.Members()
		peers := make([]cluster.Node, 0, len(all))
		for _, n := range all {
			if n.Id != localId {
				peers = append(peers, n)
			}
		}
		return peers
	}, nil)

	return membership, membership, compute, func() { membership.Leave() }, nil
}

func main() {
	Execute()
}
