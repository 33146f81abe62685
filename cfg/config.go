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

// Package cfg holds the typed configuration for every daemon role,
// modeled on gcsfuse's cfg package: a plain struct decoded from YAML via
// viper/mapstructure, with flags bound onto the same keys so CLI overrides
// take effect without a separate parsing path.
package cfg

import (
	"log/slog"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lizardfs/lizardfs-sub001/internal/logging"
)

// LoggingConfig controls the shared structured logger (§9 ambient stack).
type LoggingConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
	Level  string `mapstructure:"level" yaml:"level"`
}

func (l LoggingConfig) toLoggingConfig() logging.Config {
	format := logging.FormatText
	if l.Format == "json" {
		format = logging.FormatJSON
	}
	return logging.Config{Format: format, Level: l.Level}
}

// NetworkConfig is the listen/connect geometry shared by every daemon.
type NetworkConfig struct {
	ListenAddress string        `mapstructure:"listen-address" yaml:"listen-address"`
	IdleTimeout   time.Duration `mapstructure:"idle-timeout" yaml:"idle-timeout"`
}

// MasterConfig configures the master daemon.
type MasterConfig struct {
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	MetadataPath     string        `mapstructure:"metadata-path" yaml:"metadata-path"`
	ChunkGoalDefault int           `mapstructure:"chunk-goal-default" yaml:"chunk-goal-default"`
	HealthScanPeriod time.Duration `mapstructure:"health-scan-period" yaml:"health-scan-period"`
	ReplicationLimit int           `mapstructure:"replication-limit-per-sec" yaml:"replication-limit-per-sec"`
}

// ChunkServerConfig configures a chunkserver daemon.
type ChunkServerConfig struct {
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	MasterAddress string   `mapstructure:"master-address" yaml:"master-address"`
	DataDirs      []string `mapstructure:"data-dirs" yaml:"data-dirs"`
}

// ClientConfig configures a mounting client.
type ClientConfig struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	MasterAddress   string        `mapstructure:"master-address" yaml:"master-address"`
	IOTimeout       time.Duration `mapstructure:"io-timeout" yaml:"io-timeout"`
	ReadAheadChunks int           `mapstructure:"read-ahead-chunks" yaml:"read-ahead-chunks"`
}

// MetaloggerConfig configures a metalogger daemon.
type MetaloggerConfig struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	MasterAddress string `mapstructure:"master-address" yaml:"master-address"`
	ChangelogPath string `mapstructure:"changelog-path" yaml:"changelog-path"`
}

// BindMasterFlags registers the master daemon's CLI flags onto fs and
// binds each to the matching key in v, the same way gcsfuse's generated
// BindFlags wires pflag onto viper.
func BindMasterFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("listen-address", ":9420", "Address the master listens on for chunkservers and clients.")
	fs.Duration("idle-timeout", 10*time.Second, "Idle time before a peer connection is dropped.")
	fs.String("metadata-path", "/var/lib/lizardfs/master", "Directory holding the metadata image and changelog.")
	fs.Int("chunk-goal-default", 2, "Default replication goal for newly created chunks.")
	fs.Duration("health-scan-period", time.Second, "How often the chunk health loop runs a full scan.")
	fs.Int("replication-limit-per-sec", 1000, "Maximum REPLICATE directives issued per second.")

	binds := map[string]string{
		"listen-address":            "network.listen-address",
		"idle-timeout":              "network.idle-timeout",
		"metadata-path":             "metadata-path",
		"chunk-goal-default":        "chunk-goal-default",
		"health-scan-period":        "health-scan-period",
		"replication-limit-per-sec": "replication-limit-per-sec",
	}
	for flagName, viperKey := range binds {
		if err := v.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
			return err
		}
	}
	return nil
}

// LoadMasterConfig decodes a MasterConfig from viper's current state
// (flags + optionally a config file set up by the caller via
// viper.SetConfigFile).
func LoadMasterConfig(v *viper.Viper) (MasterConfig, error) {
	var c MasterConfig
	if err := v.Unmarshal(&c); err != nil {
		return MasterConfig{}, err
	}
	c.Rationalize()
	return c, nil
}

// Rationalize fills in defaults and clamps out-of-range values that would
// otherwise silently misbehave, the same pass gcsfuse's cfg/rationalize.go
// runs after decode.
func (c *MasterConfig) Rationalize() {
	if c.ChunkGoalDefault <= 0 {
		c.ChunkGoalDefault = 2
	}
	if c.HealthScanPeriod <= 0 {
		c.HealthScanPeriod = time.Second
	}
	if c.ReplicationLimit <= 0 {
		c.ReplicationLimit = 1000
	}
	if c.Network.IdleTimeout <= 0 {
		c.Network.IdleTimeout = 10 * time.Second
	}
}

// BindChunkServerFlags registers the chunkserver daemon's CLI flags onto fs
// and binds each to the matching key in v.
func BindChunkServerFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("listen-address", ":9422", "Address this chunkserver listens on for the master and clients.")
	fs.Duration("idle-timeout", 10*time.Second, "Idle time before a peer connection is dropped.")
	fs.String("master-address", "127.0.0.1:9420", "Address of the master to register with.")
	fs.StringSlice("data-dirs", []string{"/var/lib/lizardfs/chunkserver"}, "Directories backing this chunkserver's chunk storage.")

	binds := map[string]string{
		"listen-address": "network.listen-address",
		"idle-timeout":   "network.idle-timeout",
		"master-address": "master-address",
		"data-dirs":      "data-dirs",
	}
	for flagName, viperKey := range binds {
		if err := v.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
			return err
		}
	}
	return nil
}

// LoadChunkServerConfig decodes a ChunkServerConfig from viper's current
// state.
func LoadChunkServerConfig(v *viper.Viper) (ChunkServerConfig, error) {
	var c ChunkServerConfig
	if err := v.Unmarshal(&c); err != nil {
		return ChunkServerConfig{}, err
	}
	c.Rationalize()
	return c, nil
}

// Rationalize fills in defaults for a ChunkServerConfig.
func (c *ChunkServerConfig) Rationalize() {
	if c.Network.IdleTimeout <= 0 {
		c.Network.IdleTimeout = 10 * time.Second
	}
	if len(c.DataDirs) == 0 {
		c.DataDirs = []string{"/var/lib/lizardfs/chunkserver"}
	}
}

// BindClientFlags registers the mounting client's CLI flags onto fs and
// binds each to the matching key in v.
func BindClientFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("master-address", "127.0.0.1:9421", "Address of the master to mount against.")
	fs.Duration("io-timeout", 5*time.Second, "Timeout for a single chunkserver read or write RPC.")
	fs.Int("read-ahead-chunks", 1, "Number of chunks to prefetch ahead of sequential reads.")

	binds := map[string]string{
		"master-address":    "master-address",
		"io-timeout":        "io-timeout",
		"read-ahead-chunks": "read-ahead-chunks",
	}
	for flagName, viperKey := range binds {
		if err := v.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
			return err
		}
	}
	return nil
}

// LoadClientConfig decodes a ClientConfig from viper's current state.
func LoadClientConfig(v *viper.Viper) (ClientConfig, error) {
	var c ClientConfig
	if err := v.Unmarshal(&c); err != nil {
		return ClientConfig{}, err
	}
	c.Rationalize()
	return c, nil
}

// Rationalize fills in defaults for a ClientConfig.
func (c *ClientConfig) Rationalize() {
	if c.IOTimeout <= 0 {
		c.IOTimeout = 5 * time.Second
	}
	if c.ReadAheadChunks <= 0 {
		c.ReadAheadChunks = 1
	}
}

// BindMetaloggerFlags registers the metalogger daemon's CLI flags onto fs
// and binds each to the matching key in v.
func BindMetaloggerFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("master-address", "127.0.0.1:9419", "Address of the master to tail the changelog from.")
	fs.String("changelog-path", "/var/lib/lizardfs/metalogger/changelog.mfs", "Path to the on-disk changelog file.")

	binds := map[string]string{
		"master-address": "master-address",
		"changelog-path": "changelog-path",
	}
	for flagName, viperKey := range binds {
		if err := v.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
			return err
		}
	}
	return nil
}

// LoadMetaloggerConfig decodes a MetaloggerConfig from viper's current
// state.
func LoadMetaloggerConfig(v *viper.Viper) (MetaloggerConfig, error) {
	var c MetaloggerConfig
	if err := v.Unmarshal(&c); err != nil {
		return MetaloggerConfig{}, err
	}
	c.Rationalize()
	return c, nil
}

// Rationalize fills in defaults for a MetaloggerConfig.
func (c *MetaloggerConfig) Rationalize() {
	if c.ChangelogPath == "" {
		c.ChangelogPath = "/var/lib/lizardfs/metalogger/changelog.mfs"
	}
}

// Logger builds the shared structured logger for this config.
func (c MasterConfig) Logger() *slog.Logger { return logging.New(c.Logging.toLoggingConfig()) }

// Logger builds the shared structured logger for a chunkserver config.
func (c ChunkServerConfig) Logger() *slog.Logger { return logging.New(c.Logging.toLoggingConfig()) }

// Logger builds the shared structured logger for a client config.
func (c ClientConfig) Logger() *slog.Logger { return logging.New(c.Logging.toLoggingConfig()) }

// Logger builds the shared structured logger for a metalogger config.
func (c MetaloggerConfig) Logger() *slog.Logger { return logging.New(c.Logging.toLoggingConfig()) }
