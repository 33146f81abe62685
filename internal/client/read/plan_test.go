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

package read

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
)

func srv(h string) chunk.NetworkAddress { return chunk.NetworkAddress{Host: h, Port: 9422} }

func TestSelectPlanPrefersStandard(t *testing.T) {
	avail := Availability{
		chunk.Standard:      {srv("a")},
		chunk.Xor(3, 1):     {srv("b")},
	}
	plan, err := SelectPlan(avail)
	require.NoError(t, err)
	assert.Equal(t, KindStandard, plan.Kind)
}

func TestSelectPlanAllDataPartsWhenNoStandard(t *testing.T) {
	avail := Availability{
		chunk.Xor(3, 1): {srv("a")},
		chunk.Xor(3, 2): {srv("b")},
		chunk.Xor(3, 3): {srv("c")},
	}
	plan, err := SelectPlan(avail)
	require.NoError(t, err)
	assert.Equal(t, KindXorData, plan.Kind)
	assert.Len(t, plan.Sources, 3)
}

func TestSelectPlanParityReconstructWhenOneDataPartMissing(t *testing.T) {
	avail := Availability{
		chunk.Xor(3, 1):        {srv("a")},
		chunk.Xor(3, 3):        {srv("c")},
		chunk.XorParity(3):     {srv("p")},
	}
	plan, err := SelectPlan(avail)
	require.NoError(t, err)
	assert.Equal(t, KindXorParity, plan.Kind)
	assert.Equal(t, 2, plan.Missing)
	assert.Len(t, plan.Sources, 3)
}

func TestSelectPlanPrefersHighestLevelWhenMultipleXorLevelsComplete(t *testing.T) {
	avail := Availability{
		chunk.Xor(2, 1): {srv("a")},
		chunk.Xor(2, 2): {srv("b")},
		chunk.Xor(5, 1): {srv("c")},
		chunk.Xor(5, 2): {srv("d")},
		chunk.Xor(5, 3): {srv("e")},
		chunk.Xor(5, 4): {srv("f")},
		chunk.Xor(5, 5): {srv("g")},
	}
	plan, err := SelectPlan(avail)
	require.NoError(t, err)
	assert.Equal(t, KindXorData, plan.Kind)
	assert.Equal(t, chunk.Level(5), plan.Level)
	assert.Len(t, plan.Sources, 5)
}

func TestSelectPlanFailsWithTwoMissingDataPartsAndNoStandard(t *testing.T) {
	avail := Availability{
		chunk.Xor(3, 1):    {srv("a")},
		chunk.XorParity(3): {srv("p")},
	}
	_, err := SelectPlan(avail)
	assert.ErrorIs(t, err, ErrNoViablePlan)
}

func TestSelectPlanFailsWhenNothingAvailable(t *testing.T) {
	_, err := SelectPlan(Availability{})
	assert.ErrorIs(t, err, ErrNoViablePlan)
}
