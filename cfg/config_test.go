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

package cfg

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMasterConfigFromFlags(t *testing.T) {
	v := viper.New()
	fs := pflag.NewFlagSet("master", pflag.ContinueOnError)
	require.NoError(t, BindMasterFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--chunk-goal-default=3"}))

	c, err := LoadMasterConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ChunkGoalDefault)
	assert.Equal(t, ":9420", c.Network.ListenAddress)
}

func TestRationalizeFillsDefaults(t *testing.T) {
	c := MasterConfig{}
	c.Rationalize()
	assert.Equal(t, 2, c.ChunkGoalDefault)
	assert.Equal(t, time.Second, c.HealthScanPeriod)
	assert.Equal(t, 1000, c.ReplicationLimit)
	assert.Equal(t, 10*time.Second, c.Network.IdleTimeout)
}

func TestLoadChunkServerConfigFromFlags(t *testing.T) {
	v := viper.New()
	fs := pflag.NewFlagSet("chunkserver", pflag.ContinueOnError)
	require.NoError(t, BindChunkServerFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--master-address=10.0.0.1:9420"}))

	c, err := LoadChunkServerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9420", c.MasterAddress)
	assert.Equal(t, []string{"/var/lib/lizardfs/chunkserver"}, c.DataDirs)
}

func TestLoadClientConfigFromFlags(t *testing.T) {
	v := viper.New()
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	require.NoError(t, BindClientFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--read-ahead-chunks=4"}))

	c, err := LoadClientConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 4, c.ReadAheadChunks)
	assert.Equal(t, 5*time.Second, c.IOTimeout)
}

func TestLoadMetaloggerConfigFromFlags(t *testing.T) {
	v := viper.New()
	fs := pflag.NewFlagSet("metalogger", pflag.ContinueOnError)
	require.NoError(t, BindMetaloggerFlags(v, fs))
	require.NoError(t, fs.Parse(nil))

	c, err := LoadMetaloggerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9419", c.MasterAddress)
	assert.Equal(t, "/var/lib/lizardfs/metalogger/changelog.mfs", c.ChangelogPath)
}
