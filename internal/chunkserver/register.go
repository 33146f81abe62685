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

package chunkserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/master/registry"
	"github.com/lizardfs/lizardfs-sub001/internal/metalogger"
	"github.com/lizardfs/lizardfs-sub001/internal/netsrv"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// MasterHandler is the master-side counterpart of Reporter: it folds a
// chunkserver's CSTOMA_REGISTER / CSTOMA_SPACE / CSTOMA_CHUNK_DAMAGED /
// CSTOMA_CHUNK_LOST reports into the registry's live server table and chunk
// bookkeeping (§4.1, §4.3).
type MasterHandler struct {
	Registry *registry.Registry
	Logger   *slog.Logger
}

// NewMasterHandler builds a MasterHandler writing into reg.
func NewMasterHandler(reg *registry.Registry, logger *slog.Logger) *MasterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MasterHandler{Registry: reg, Logger: logger}
}

// Handle implements netsrv.Handler for chunkserver-originated connections.
func (h *MasterHandler) Handle(ctx context.Context, c *netsrv.Conn, header wire.PacketHeader, payload []byte) error {
	switch header.Type {
	case wire.CstomaRegister:
		return h.handleRegister(c, payload)
	case wire.CstomaSpace:
		return h.handleSpace(payload)
	case wire.CstomaChunkDamaged:
		return h.handleChunkDamaged(payload)
	case wire.CstomaChunkLost:
		return h.handleChunkLost(payload)
	case wire.MltomaRegister:
		return h.handleMetaloggerRegister(ctx, c, payload)
	case wire.CltomaCservList:
		return h.handleCservList(c)
	default:
		return fmt.Errorf("chunkserver: master received unexpected message type %d", header.Type)
	}
}

func (h *MasterHandler) handleRegister(c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	addr := getAddress(d)
	total := d.U64()
	if d.Err() != nil {
		return d.Err()
	}
	h.Registry.Servers.Register(addr, 0, total)
	c.BeforeClose = func(*netsrv.Conn) {
		h.Registry.Servers.Unregister(addr)
	}
	h.Logger.Info("chunkserver registered", slog.String("address", addr.String()))
	return nil
}

func (h *MasterHandler) handleSpace(payload []byte) error {
	d := wire.NewDecoder(payload)
	addr := getAddress(d)
	used := d.U64()
	total := d.U64()
	if d.Err() != nil {
		return d.Err()
	}
	h.Registry.Servers.Register(addr, used, total)
	return nil
}

func (h *MasterHandler) handleChunkDamaged(payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	addr := getAddress(d)
	if d.Err() != nil {
		return d.Err()
	}
	h.Registry.ReportDamaged(id, addr)
	return nil
}

func (h *MasterHandler) handleChunkLost(payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	addr := getAddress(d)
	if d.Err() != nil {
		return d.Err()
	}
	h.Registry.ReportLost(id, addr)
	return nil
}

// handleMetaloggerRegister answers MLTOMA_REGISTER (§4.7), the metalogger
// announcing itself and, at protocol version 2, the change id it already
// has (want_since_version) so it can resume instead of redownloading the
// whole metadata image. Ported from
// original_source/src/master/matomlserv.c's matomlserv_register /
// matomlserv_send_old_changes pair: version 1 carries no replay request
// at all (the metalogger is assumed to be starting fresh), version 2
// adds the 8-byte minversion this handler reads as since.
func (h *MasterHandler) handleMetaloggerRegister(ctx context.Context, c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	rversion := d.U8()
	_ = d.U32() // metalogger's wire protocol version, not negotiated here
	_ = d.U16() // requested idle timeout; netsrv.Config already governs this connection's timeout
	var since uint64
	if rversion >= 2 {
		since = d.U64()
	}
	if d.Err() != nil {
		return d.Err()
	}

	if h.Registry.Changelog == nil {
		h.Logger.Warn("metalogger registered but no changelog is wired in", slog.String("address", c.RemoteAddr))
		return nil
	}

	ch, backlog, cancel := h.Registry.Changelog.Subscribe(since)
	for _, chg := range backlog {
		if err := sendChange(c, chg); err != nil {
			cancel()
			return err
		}
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case chg, ok := <-ch:
				if !ok {
					return
				}
				if err := sendChange(c, chg); err != nil {
					return
				}
			}
		}
	}()

	h.Logger.Info("metalogger registered", slog.String("address", c.RemoteAddr), slog.Uint64("since_version", since))
	return nil
}

func sendChange(c *netsrv.Conn, chg metalogger.Change) error {
	e := wire.NewEncoder(nil)
	e.PutU64(chg.ID)
	e.PutName(chg.Line)
	return c.SendPacket(wire.MatomlMetachangesLog, e.Bytes())
}

// handleCservList answers CLTOMA_CSERV_LIST, the probe CLI's
// list-chunkservers request (§4), with one record per registered server.
// Ported from the shape of original_source/utils/lizardfs_probe's
// MATOCL_CSERV_LIST reply, reduced to the fields ServerInfo actually
// tracks: address, mode, used and total space. The original's per-server
// version, chunk count, to-delete space and error count are not modeled by
// this registry and are omitted rather than faked.
func (h *MasterHandler) handleCservList(c *netsrv.Conn) error {
	servers := h.Registry.Servers.Snapshot()
	e := wire.NewEncoder(nil)
	e.PutU32(uint32(len(servers)))
	for _, s := range servers {
		putAddress(e, s.Address)
		e.PutU8(uint8(s.Mode))
		e.PutU64(s.Used)
		e.PutU64(s.Total)
	}
	return c.SendPacket(wire.MatoclCservList, e.Bytes())
}

// Reporter is the chunkserver-side sender of registration and periodic
// space reports, grounded on the original chunkserver's masterconn.c
// registration loop reduced to the pieces this module tracks: identity,
// capacity, and per-chunk damage/loss events.
type Reporter struct {
	Conn   *netsrv.Conn
	Self   chunk.NetworkAddress
	Store  *Store
	Period time.Duration
	Logger *slog.Logger
}

// NewReporter builds a Reporter sending space reports every period over
// conn, which must already be connected to the master.
func NewReporter(conn *netsrv.Conn, self chunk.NetworkAddress, store *Store, period time.Duration, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if period <= 0 {
		period = 10 * time.Second
	}
	return &Reporter{Conn: conn, Self: self, Store: store, Period: period, Logger: logger}
}

// Register sends the one-time CSTOMA_REGISTER announcing this chunkserver
// and its advertised total capacity.
func (r *Reporter) Register() error {
	_, total := r.Store.Usage()
	e := wire.NewEncoder(nil)
	putAddress(e, r.Self)
	e.PutU64(total)
	return r.Conn.SendPacket(wire.CstomaRegister, e.Bytes())
}

// Run sends CSTOMA_SPACE every Period until ctx is canceled.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.reportSpace(); err != nil {
				r.Logger.Warn("space report failed", slog.Any("err", err))
			}
		}
	}
}

func (r *Reporter) reportSpace() error {
	used, total := r.Store.Usage()
	e := wire.NewEncoder(nil)
	putAddress(e, r.Self)
	e.PutU64(used)
	e.PutU64(total)
	return r.Conn.SendPacket(wire.CstomaSpace, e.Bytes())
}

// ReportChunkDamaged notifies the master that a local copy failed
// verification (§4.3 "CSTOMA_CHUNK_DAMAGED").
func (r *Reporter) ReportChunkDamaged(id chunk.ID) error {
	e := wire.NewEncoder(nil)
	e.PutU64(uint64(id))
	putAddress(e, r.Self)
	return r.Conn.SendPacket(wire.CstomaChunkDamaged, e.Bytes())
}

// ReportChunkLost notifies the master that a local copy is gone entirely
// (§4.3 "CSTOMA_CHUNK_LOST").
func (r *Reporter) ReportChunkLost(id chunk.ID) error {
	e := wire.NewEncoder(nil)
	e.PutU64(uint64(id))
	putAddress(e, r.Self)
	return r.Conn.SendPacket(wire.CstomaChunkLost, e.Bytes())
}
