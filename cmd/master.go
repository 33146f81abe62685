// Copyright 2024 The LizardFS-Go Authors
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

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lizardfs/lizardfs-sub001/cfg"
	"github.com/lizardfs/lizardfs-sub001/internal/chunkserver"
	"github.com/lizardfs/lizardfs-sub001/internal/master/healthloop"
	"github.com/lizardfs/lizardfs-sub001/internal/master/registry"
	"github.com/lizardfs/lizardfs-sub001/internal/metalogger"
	"github.com/lizardfs/lizardfs-sub001/internal/netsrv"
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run the metadata master daemon",
	RunE:  runMaster,
}

func init() {
	v := viper.New()
	if err := cfg.BindMasterFlags(v, masterCmd.Flags()); err != nil {
		panic(err)
	}
	masterViper = v
}

var masterViper *viper.Viper

func runMaster(c *cobra.Command, args []string) error {
	mc, err := cfg.LoadMasterConfig(masterViper)
	if err != nil {
		return fmt.Errorf("loading master config: %w", err)
	}
	logger := mc.Logger()

	servers := registry.NewServerTable()
	reg := registry.NewRegistry(servers)
	client := chunkserver.NewMasterClient()

	changelogPath := filepath.Join(mc.MetadataPath, "changelog.mfs")
	changelogFile, err := os.OpenFile(changelogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening changelog %s: %w", changelogPath, err)
	}
	defer changelogFile.Close()
	reg.Changelog = registry.NewChangelog(metalogger.New(changelogFile))

	promReg := prometheus.NewRegistry()
	metrics := healthloop.NewMetrics(promReg)
	loop := healthloop.NewLoop(reg, client, metrics, logger, mc.HealthScanPeriod)

	handler := chunkserver.NewMasterHandler(reg, logger)
	srv := netsrv.NewServer(netsrv.Config{
		IdleTimeout: mc.Network.IdleTimeout,
		Logger:      logger,
	}, handler.Handle)

	ln, err := net.Listen("tcp", mc.Network.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", mc.Network.ListenAddress, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("master listening", "address", mc.Network.ListenAddress)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Serve(ctx, ln) }()
	go func() { errCh <- loop.Run(ctx) }()

	<-ctx.Done()
	srv.Shutdown()
	return nil
}
