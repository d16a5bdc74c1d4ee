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


package graphio

import (
	"strings"
	"testing"

	"github.com/cloudwego/maglev/internal/arch"
	"github.com/cloudwego/maglev/internal/ir"
	"github.com/cloudwego/maglev/internal/opts"
	"github.com/cloudwego/maglev/internal/regalloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocate(t *testing.T, g *ir.Graph) {
	cfg := arch.AMD64()
	require.NoError(t, ir.VerifyRegisters(g, cfg))
	regalloc.Allocate(g, regalloc.Config{
		Registers: cfg,
		Options:   opts.Options{Verify: true, ReuseStackSlots: true},
	})
}

func TestLoad_Loop(t *testing.T) {
	g, err := Load("testdata/loop.json")
	require.NoError(t, err)
	require.Len(t, g.Blocks, 4)
	require.Len(t, g.Constants, 2)

	/* the phi input from the back edge was resolved */
	header := g.Blocks[1]
	require.Len(t, header.Phis, 1)
	assert.Equal(t, "CheckedInt32Add", header.Phis[0].Input(1).Node().Op)
	assert.True(t, header.IsLoopHeader())

	/* the call carries a two level lazy deopt frame */
	call := g.Blocks[2].Nodes[1].Base()
	assert.True(t, call.IsCall())
	require.NotNil(t, call.LazyDeopt)
	assert.Len(t, call.LazyDeopt.Locations, 2)

	/* allocate */
	allocate(t, g)
	jl := g.Blocks[2].Control.(*ir.JumpLoop)
	require.Len(t, jl.UsedNodes, 2)
	for i := range jl.UsedNodes {
		assert.True(t, jl.UsedNodes[i].Operand().IsStackSlot())
	}
	assert.Equal(t, ir.RegisterOperand(arch.RAX), g.Blocks[3].Control.Base().Input(0).Operand())
}

func TestLoad_Switch(t *testing.T) {
	g, err := Load("testdata/switch.json")
	require.NoError(t, err)
	require.Len(t, g.Blocks, 6)

	/* phi inputs follow the predecessor order */
	merge := g.Blocks[4]
	p := merge.Phis[0]
	assert.Equal(t, "Float64ToTagged", p.Input(0).Node().Op)
	assert.Equal(t, "Int32ToTagged", p.Input(1).Node().Op)

	/* allocate */
	allocate(t, g)
	d := g.Blocks[0].Nodes[1].(*ir.ValueNode)
	assert.Equal(t, ir.DoubleRegisterOperand(arch.XMM1), d.Result())
	assert.True(t, d.IsSpilled())
	assert.Equal(t, ir.RegisterOperand(arch.RAX), g.Blocks[5].Phis[0].Result())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  string
	}{
		{"unknown field", `{"blocks": [], "registers": 3}`, "unknown field"},
		{"undefined value", `{"blocks": [{"label": "a", "control": {"op": "Return", "inputs": [{"value": "x"}]}}]}`, `undefined value "x"`},
		{"undefined block", `{"blocks": [{"label": "a", "control": {"op": "Jump", "targets": ["b"]}}]}`, `undefined block "b"`},
		{"bad policy", `{"blocks": [{"label": "a", "nodes": [{"name": "x", "op": "Load", "result": "rsp:1"}], "control": {"op": "Abort"}}]}`, "invalid result policy"},
		{"bad repr", `{"constants": [{"name": "k", "repr": "Int8"}], "blocks": []}`, "unknown representation"},
		{"no control", `{"blocks": [{"label": "a"}]}`, "missing control node"},
		{"unverified", `{"blocks": [{"label": "a", "control": {"op": "JumpLoop", "targets": ["b"]}}, {"label": "b", "control": {"op": "Abort"}}]}`, "goes forward"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			desc, err := Decode(strings.NewReader(tc.src))
			if err == nil {
				_, err = desc.Build()
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestParseResult(t *testing.T) {
	op, err := parseResult("same:1")
	require.NoError(t, err)
	assert.Equal(t, ir.SameAsInputPolicy(1), op)
	op, err = parseResult("slot:-2")
	require.NoError(t, err)
	assert.Equal(t, ir.FixedSlotPolicy(-2), op)
	op, err = parseResult("rdx")
	require.NoError(t, err)
	assert.Equal(t, ir.FixedRegisterPolicy(arch.RDX), op)
	_, err = parseResult("stack")
	assert.Error(t, err)
}
