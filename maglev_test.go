/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package maglev

import (
	"errors"
	"testing"

	"github.com/cloudwego/maglev/debug"
	"github.com/cloudwego/maglev/internal/arch"
	"github.com/cloudwego/maglev/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func load(b *Builder, repr Representation) *ValueNode {
	return b.Value(Instr{Op: "Load", Repr: repr, Result: ir.Unallocated(ir.PolicyMustHaveRegister)})
}

// buildSum returns x0 + x1 + ... + x(n-1), keeping every value alive until
// the final node reads all of them.
func buildSum(t *testing.T, n int) (*Graph, *ValueNode) {
	b := NewBuilder()
	b.SetBlock(b.NewBlock())

	/* load the values */
	var uses []Use
	for i := 0; i < n; i++ {
		uses = append(uses, ir.Reg(load(b, Tagged)))
	}

	/* and add them up */
	sum := b.Value(Instr{Op: "Sum", Repr: Tagged, Result: ir.Unallocated(ir.PolicyMustHaveRegister), Inputs: uses})
	b.Return(sum)
	g, err := b.Finish()
	require.NoError(t, err)
	return g, sum
}

func TestAllocateRegisters(t *testing.T) {
	g, sum := buildSum(t, 3)
	before := debug.GetStats()
	require.NoError(t, AllocateRegisters(g, WithVerification(true)))

	/* every input got a distinct register */
	seen := make(map[arch.GeneralRegister]bool)
	for i := 0; i < sum.InputCount(); i++ {
		op := sum.Input(i).Operand()
		require.True(t, op.IsRegister())
		assert.False(t, seen[op.Register()])
		seen[op.Register()] = true
	}
	assert.Equal(t, before.Runs+1, debug.GetStats().Runs)
}

func TestAllocateRegisters_LimitError(t *testing.T) {
	g, _ := buildSum(t, 3)
	err := AllocateRegisters(g, WithAllocatableRegisters(2, 0))
	require.Error(t, err)

	/* nothing was touched */
	var le LimitError
	require.True(t, errors.As(err, &le))
	var ge GraphError
	assert.True(t, errors.As(err, &ge))
	assert.Contains(t, err.Error(), "needs 3 general registers, only 2 allocatable")
	assert.Panics(t, func() { WithAllocatableRegisters(-1, 0) })
}

func TestAllocateRegisters_InvariantError(t *testing.T) {
	b := NewBuilder()
	b.SetBlock(b.NewBlock())
	x := load(b, Tagged)
	b.Return(x)
	g, err := b.Finish()
	require.NoError(t, err)

	/* a result placed behind the allocator's back */
	x.SetResult(ir.RegisterOperand(arch.RBX))
	err = AllocateRegisters(g)
	var ie *InvariantError
	require.True(t, errors.As(err, &ie), "%v", err)
	assert.Equal(t, "result is already allocated", ie.Reason)
}

func TestAllocateRegisters_Spills(t *testing.T) {
	g, _ := buildSum(t, 2)
	b := g.Blocks[0]

	/* two registers for two live values and a result */
	require.NoError(t, AllocateRegisters(g, WithAllocatableRegisters(2, 0), WithVerification(true)))
	assert.Equal(t, 0, g.TaggedStackSlots)
	assert.NotEmpty(t, b.Nodes)
}

func TestAllocateRegisters_Trace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	old := SetLogger(zap.New(core))
	defer SetLogger(old)

	/* traces only show up when asked for */
	g, _ := buildSum(t, 2)
	require.NoError(t, AllocateRegisters(g))
	assert.Zero(t, logs.Len())
	g, _ = buildSum(t, 2)
	require.NoError(t, AllocateRegisters(g, WithTrace(true)))
	assert.NotZero(t, logs.FilterMessage("block").Len())
	assert.NotZero(t, logs.FilterMessage("allocated").Len())
}

func TestSetStackSlotReuse(t *testing.T) {
	old := SetStackSlotReuse(false)
	defer SetStackSlotReuse(old)
	assert.False(t, SetStackSlotReuse(false))
}
