// Copyright 2026 bubbly Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_Copy(t *testing.T) {
	// Create parameters
	a := Params{
		NEstimators: 1,
		Lr:          float32(0.1),
		MaxDepth:    0,
	}
	// Create copy
	b := a.Copy()
	b[NEstimators] = 2
	b[Lr] = float32(0.2)
	b[MaxDepth] = 1
	// Check original parameters
	assert.Equal(t, 1, a.GetInt(NEstimators, -1))
	assert.Equal(t, float32(0.1), a.GetFloat32(Lr, -0.1))
	assert.Equal(t, 0, a.GetInt(MaxDepth, -1))
	// Check copy parameters
	assert.Equal(t, 2, b.GetInt(NEstimators, -1))
	assert.Equal(t, float32(0.2), b.GetFloat32(Lr, -0.1))
	assert.Equal(t, 1, b.GetInt(MaxDepth, -1))
}

func TestParams_GetFloat32(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, float32(0.1), p.GetFloat32(Lr, 0.1))
	// Normal case
	p[Lr] = float32(1.0)
	assert.Equal(t, float32(1.0), p.GetFloat32(Lr, 0.1))
	// Wrong type case
	p[Lr] = 1
	assert.Equal(t, float32(1.0), p.GetFloat32(Lr, 0.1))
	p[Lr] = 0.5
	assert.Equal(t, float32(0.5), p.GetFloat32(Lr, 0.1))
	p[Lr] = "hello"
	assert.Equal(t, float32(0.1), p.GetFloat32(Lr, 0.1))
}

func TestParams_GetInt(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, -1, p.GetInt(MaxDepth, -1))
	// Normal case
	p[MaxDepth] = 6
	assert.Equal(t, 6, p.GetInt(MaxDepth, -1))
	// Wrong type case
	p[MaxDepth] = 6.0
	assert.Equal(t, -1, p.GetInt(MaxDepth, -1))
}

func TestParams_ToString(t *testing.T) {
	p := Params{MaxDepth: 6}
	assert.Equal(t, `{"MaxDepth":6}`, p.ToString())
}
