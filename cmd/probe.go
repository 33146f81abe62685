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
	"bufio"
	"fmt"
	"net"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// probeCmd is a minimal, read-only reimplementation of lizardfs_probe's
// list-chunkservers command: dial the master, send CLTOMA_CSERV_LIST and
// print the MATOCL_CSERV_LIST reply. Grounded on
// original_source/utils/lizardfs_probe/list_chunkservers_command.cc, trimmed
// to the fields this module's registry.ServerInfo tracks (no per-server
// version, chunk count, to-delete space or error count, which this registry
// never models).
var probeCmd = &cobra.Command{
	Use:   "probe list-chunkservers <master-address>",
	Short: "Query a running master for its chunkserver list",
	Args:  cobra.ExactArgs(2),
	RunE:  runProbe,
}

func runProbe(c *cobra.Command, args []string) error {
	if args[0] != "list-chunkservers" {
		return fmt.Errorf("probe: unknown subcommand %q (only list-chunkservers is implemented)", args[0])
	}
	masterAddr, err := parseNetworkAddress(args[1])
	if err != nil {
		return fmt.Errorf("probe: parsing master address %q: %w", args[1], err)
	}

	servers, err := fetchCservList(masterAddr)
	if err != nil {
		return fmt.Errorf("probe: querying master %s: %w", masterAddr, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tMODE\tUSED\tTOTAL\tUSAGE%")
	for _, s := range servers {
		mode := "OK"
		if s.Mode == 1 {
			mode = "KILL"
		}
		usage := 0.0
		if s.Total > 0 {
			usage = 100 * float64(s.Used) / float64(s.Total)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f\n", s.Address, mode, s.Used, s.Total, usage)
	}
	return w.Flush()
}

// cservEntry mirrors one record of the MATOCL_CSERV_LIST reply.
type cservEntry struct {
	Address chunk.NetworkAddress
	Mode    uint8
	Used    uint64
	Total   uint64
}

func fetchCservList(masterAddr chunk.NetworkAddress) ([]cservEntry, error) {
	nc, err := net.DialTimeout("tcp", masterAddr.String(), 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	if err := wire.WritePacket(nc, wire.CltomaCservList, nil); err != nil {
		return nil, err
	}

	header, payload, err := wire.ReadPacket(bufio.NewReader(nc), wire.MaxPacketSizeMasterToClient)
	if err != nil {
		return nil, err
	}
	if header.Type != wire.MatoclCservList {
		return nil, fmt.Errorf("unexpected reply type %d", header.Type)
	}

	d := wire.NewDecoder(payload)
	n := d.U32()
	out := make([]cservEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		host := d.Name()
		port := d.U16()
		mode := d.U8()
		used := d.U64()
		total := d.U64()
		out = append(out, cservEntry{
			Address: chunk.NetworkAddress{Host: host, Port: port},
			Mode:    mode,
			Used:    used,
			Total:   total,
		})
	}
	if d.Err() != nil {
		return nil, d.Err()
	}
	return out, nil
}
