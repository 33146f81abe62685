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

package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardType(t *testing.T) {
	assert.True(t, Standard.IsStandard())
	assert.False(t, Standard.IsParity())
	assert.Equal(t, "standard", Standard.String())
}

func TestXorType(t *testing.T) {
	data := Xor(3, 2)
	assert.False(t, data.IsStandard())
	assert.False(t, data.IsParity())
	assert.Equal(t, "xor3/2", data.String())

	parity := XorParity(3)
	assert.True(t, parity.IsParity())
	assert.Equal(t, "xor3/parity", parity.String())
}

func TestDataPartForBlock(t *testing.T) {
	// level 3: blocks 0,1,2,3,4,5 -> parts 1,2,3,1,2,3
	want := []int{1, 2, 3, 1, 2, 3}
	for i, w := range want {
		assert.Equal(t, w, DataPartForBlock(3, i), "block %d", i)
	}
}

func TestBlockOfStripe(t *testing.T) {
	part := Xor(3, 1) // holds global blocks 0,3,6,...
	assert.Equal(t, 0, part.BlockOfStripe(0))
	assert.Equal(t, 1, part.BlockOfStripe(3))
	assert.Equal(t, 2, part.BlockOfStripe(6))
}
