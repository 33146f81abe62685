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
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lizardfs/lizardfs-sub001/cfg"
	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/chunkserver"
	"github.com/lizardfs/lizardfs-sub001/internal/netsrv"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

var chunkServerCmd = &cobra.Command{
	Use:   "chunkserver",
	Short: "Run a chunkserver daemon",
	RunE:  runChunkServer,
}

var chunkServerViper *viper.Viper

func init() {
	v := viper.New()
	if err := cfg.BindChunkServerFlags(v, chunkServerCmd.Flags()); err != nil {
		panic(err)
	}
	chunkServerViper = v
}

func runChunkServer(c *cobra.Command, args []string) error {
	csc, err := cfg.LoadChunkServerConfig(chunkServerViper)
	if err != nil {
		return fmt.Errorf("loading chunkserver config: %w", err)
	}
	logger := csc.Logger()

	self, err := parseNetworkAddress(csc.Network.ListenAddress)
	if err != nil {
		return fmt.Errorf("parsing listen-address: %w", err)
	}

	// DataDirs names where chunk storage would live on disk; on-disk chunk
	// I/O is out of scope here (opaque behind the CS protocol), so Store
	// keeps blocks in memory and only uses the configured directories'
	// count to size its advertised capacity.
	store := chunkserver.NewStore(uint64(len(csc.DataDirs)+1) << 34)

	server := chunkserver.NewServer(store, self, logger)
	srv := netsrv.NewServer(netsrv.Config{
		IdleTimeout: csc.Network.IdleTimeout,
		Logger:      logger,
	}, server.Handle)

	ln, err := net.Listen("tcp", csc.Network.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", csc.Network.ListenAddress, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	masterAddr, err := parseNetworkAddress(csc.MasterAddress)
	if err != nil {
		return fmt.Errorf("parsing master-address: %w", err)
	}
	if err := runReporter(ctx, masterAddr, self, store, logger); err != nil {
		logger.Warn("registering with master failed", "err", err)
	}

	logger.Info("chunkserver listening", "address", csc.Network.ListenAddress, "master", csc.MasterAddress)
	go func() { _ = srv.Serve(ctx, ln) }()

	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// runReporter dials the master and starts the registration/space-report
// loop in the background, returning once the initial CSTOMA_REGISTER has
// been sent.
func runReporter(ctx context.Context, masterAddr, self chunk.NetworkAddress, store *chunkserver.Store, logger *slog.Logger) error {
	nc, err := net.DialTimeout("tcp", net.JoinHostPort(masterAddr.Host, strconv.Itoa(int(masterAddr.Port))), 5*time.Second)
	if err != nil {
		return err
	}
	conn := netsrv.NewConn(nc, netsrv.Config{IdleTimeout: 30 * time.Second}, func(ctx context.Context, c *netsrv.Conn, header wire.PacketHeader, payload []byte) error {
		return nil
	})
	reporter := chunkserver.NewReporter(conn, self, store, 10*time.Second, logger)
	if err := reporter.Register(); err != nil {
		return err
	}
	go func() { _ = conn.Serve(ctx) }()
	go func() { _ = reporter.Run(ctx) }()
	return nil
}

func parseNetworkAddress(listenAddr string) (chunk.NetworkAddress, error) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return chunk.NetworkAddress{}, err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return chunk.NetworkAddress{}, err
	}
	return chunk.NetworkAddress{Host: host, Port: uint16(port)}, nil
}
