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

package netsrv

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
)

// Server accepts connections on a single TCP listener and runs a Conn
// reactor for each, tracking the live set so ActiveConns can report it and
// Shutdown can close every connection and wait for its reactor to return.
// Shutdown does not wait for in-flight operations to finish first.
type Server struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	wg      sync.WaitGroup
}

// NewServer builds a Server that dispatches every accepted connection to
// handler.
func NewServer(cfg Config, handler Handler) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  cfg.Logger,
		conns:   make(map[*Conn]struct{}),
	}
}

// Serve accepts connections from ln until ctx is canceled or Accept fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		c := NewConn(nc, s.cfg, s.handler)
		s.track(c)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			if err := c.Serve(ctx); err != nil {
				s.logger.Debug("connection closed", slog.String("remote", c.RemoteAddr), slog.Any("err", err))
			}
		}()
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// ActiveConns reports the number of currently-tracked connections, the
// basis for a canExit()-style shutdown gate.
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every tracked connection and waits for their reactor
// goroutines to return.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
}
