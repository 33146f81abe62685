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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lizardfs/lizardfs-sub001/cfg"
	"github.com/lizardfs/lizardfs-sub001/internal/metalogger"
	"github.com/lizardfs/lizardfs-sub001/internal/netsrv"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

var metaloggerCmd = &cobra.Command{
	Use:   "metalogger",
	Short: "Run a metalogger daemon tailing the master's change stream",
	RunE:  runMetalogger,
}

var metaloggerViper *viper.Viper

func init() {
	v := viper.New()
	if err := cfg.BindMetaloggerFlags(v, metaloggerCmd.Flags()); err != nil {
		panic(err)
	}
	metaloggerViper = v
}

func runMetalogger(c *cobra.Command, args []string) error {
	mlc, err := cfg.LoadMetaloggerConfig(metaloggerViper)
	if err != nil {
		return fmt.Errorf("loading metalogger config: %w", err)
	}
	logger := mlc.Logger()

	f, err := os.OpenFile(mlc.ChangelogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening changelog %s: %w", mlc.ChangelogPath, err)
	}
	stream := metalogger.New(f)

	nc, err := net.DialTimeout("tcp", mlc.MasterAddress, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dialing master %s: %w", mlc.MasterAddress, err)
	}

	handler := changeStreamHandler(stream, logger)
	conn := netsrv.NewConn(nc, netsrv.Config{IdleTimeout: 30 * time.Second, Logger: logger}, handler)

	if err := sendRegister(conn, stream); err != nil {
		return fmt.Errorf("registering with master %s: %w", mlc.MasterAddress, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("metalogger tailing master", "master", mlc.MasterAddress, "changelog", mlc.ChangelogPath)
	return conn.Serve(ctx)
}

// sendRegister sends MLTOMA_REGISTER at protocol version 2, carrying the
// last change id stream has recorded so the master replays only later
// changes. Stream does not load ids back from the changelog file, so a
// freshly started metalogger sends 0 and receives the master's whole
// retained backlog. Ported from original_source/src/mount/masterconn.c's REGISTER(rver=2)
// (§4.7).
func sendRegister(conn *netsrv.Conn, stream *metalogger.Stream) error {
	var since uint64
	if lastID, ok := stream.LastID(); ok {
		since = lastID
	}
	e := wire.NewEncoder(nil)
	e.PutU8(2)   // rversion
	e.PutU32(1)  // this metalogger's protocol version
	e.PutU16(30) // requested idle timeout, seconds
	e.PutU64(since)
	return conn.SendPacket(wire.MltomaRegister, e.Bytes())
}

// changeStreamHandler decodes MATOML_METACHANGES_LOG packets (one change
// id + text line per packet) into stream. A gap reported as ErrGap is
// logged and the connection stays open; no metadata download is started,
// and the stream keeps rejecting later ids until the expected one arrives.
func changeStreamHandler(stream *metalogger.Stream, logger *slog.Logger) netsrv.Handler {
	return func(ctx context.Context, c *netsrv.Conn, header wire.PacketHeader, payload []byte) error {
		if header.Type != wire.MatomlMetachangesLog {
			return nil
		}
		d := wire.NewDecoder(payload)
		id := d.U64()
		line := d.Name()
		if d.Err() != nil {
			return d.Err()
		}
		if err := stream.Append(metalogger.Change{ID: id, Line: line}); err != nil {
			logger.Warn("change stream gap detected", "id", id, "err", err)
			return nil
		}
		return nil
	}
}
