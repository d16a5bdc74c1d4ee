/*
 * Copyright 2022 ByteDance Inc.
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


package ir

import (
    `strings`
    `testing`

    `github.com/cloudwego/maglev/internal/arch`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func reg() Operand {
    return Unallocated(PolicyMustHaveRegister)
}

func add(b *Builder, x Value, y Value) *ValueNode {
    return b.Value(Instr {
        Op     : "Int32Add",
        Repr   : Int32,
        Result : reg(),
        Inputs : []Use { Reg(x), Any(y) },
    })
}

func buildDiamond(t *testing.T) (*Graph, []*BasicBlock, *Phi) {
    b := NewBuilder()
    entry, bt, bf, merge := b.NewBlock(), b.NewBlock(), b.NewBlock(), b.NewBlock()
    one := b.Constant(Int32, 1)

    /* entry: v = 1 + 1; branch v */
    b.SetBlock(entry)
    v := add(b, one, one)
    b.Branch(Reg(v), bt, bf)

    /* both arms jump to the merge */
    b.SetBlock(bt)
    w := add(b, v, one)
    b.Jump(merge)
    b.SetBlock(bf)
    b.Jump(merge)

    /* phi inputs given out of predecessor order */
    b.SetBlock(merge)
    p := b.Phi(merge, Int32, Incoming { bf, one }, Incoming { bt, w })
    b.Return(p)

    /* finish the graph */
    g, err := b.Finish()
    require.NoError(t, err)
    return g, []*BasicBlock { entry, bt, bf, merge }, p
}

func TestBuilder_Diamond(t *testing.T) {
    g, bbs, p := buildDiamond(t)
    entry, bt, bf, merge := bbs[0], bbs[1], bbs[2], bbs[3]
    require.Len(t, g.Blocks, 4)

    /* ids follow the layout, constants first */
    assert.Equal(t, NodeId(1), g.Constants[0].Id())
    assert.Equal(t, NodeId(2), entry.FirstId())
    assert.Equal(t, entry.Control.Base().Id() + 1, bt.FirstId())
    assert.Equal(t, p.Id(), merge.FirstId())
    assert.Equal(t, g.MaxId(), merge.Control.Base().Id())

    /* merge states */
    assert.False(t, entry.HasState())
    assert.False(t, bt.HasState())
    assert.True(t, bf.HasState())
    assert.True(t, merge.HasState())

    /* phi inputs follow the predecessors */
    require.Equal(t, []*BasicBlock { bt, bf }, merge.Pred)
    assert.Equal(t, "Int32Add", p.Input(0).Node().Op)
    assert.True(t, p.Input(1).Node().IsConstant())
    assert.Equal(t, 0, bt.PredecessorId())
    assert.Equal(t, 1, bf.PredecessorId())
}

func TestBuilder_SplitCriticalEdges(t *testing.T) {
    b := NewBuilder()
    entry, other, merge := b.NewBlock(), b.NewBlock(), b.NewBlock()
    one := b.Constant(Tagged, 1)

    /* entry branches straight into the merge */
    b.SetBlock(entry)
    b.Branch(Reg(one), merge, other)
    b.SetBlock(other)
    b.Jump(merge)
    b.SetBlock(merge)
    p := b.Phi(merge, Tagged, Incoming { entry, one }, Incoming { other, one })
    b.Return(p)

    /* the edge entry → merge gets its own block right before the merge */
    g, err := b.Finish()
    require.NoError(t, err)
    require.Len(t, g.Blocks, 4)
    split := g.Blocks[2]
    assert.Equal(t, merge, g.Blocks[3])
    assert.Equal(t, split, entry.Control.(*Branch).IfTrue)
    assert.Equal(t, merge, split.Control.(*Jump).Target)
    assert.Equal(t, []*BasicBlock { split, other }, merge.Pred)
    assert.Equal(t, []*BasicBlock { entry }, split.Pred)
    assert.Equal(t, 0, split.PredecessorId())
    assert.True(t, split.HasState())
}

func TestBuilder_SwitchDuplicateTargets(t *testing.T) {
    b := NewBuilder()
    entry, merge, exit := b.NewBlock(), b.NewBlock(), b.NewBlock()
    idx := b.Constant(Int32, 0)

    /* two cases share the merge */
    b.SetBlock(entry)
    b.Switch(Reg(idx), []*BasicBlock { merge, merge }, exit)
    b.SetBlock(merge)
    b.Return(idx)
    b.SetBlock(exit)
    b.Abort("unreachable")

    /* each case edge is split separately */
    g, err := b.Finish()
    require.NoError(t, err)
    sw := entry.Control.(*Switch)
    require.Len(t, g.Blocks, 5)
    assert.NotEqual(t, sw.Targets[0], sw.Targets[1])
    assert.Len(t, merge.Pred, 2)
    assert.Equal(t, exit, sw.Fallthrough)
}

func TestVerify_Errors(t *testing.T) {
    b := NewBuilder()
    entry, merge := b.NewBlock(), b.NewBlock()
    one := b.Constant(Tagged, 1)

    /* lazy deopt on a node that is not a call */
    b.SetBlock(entry)
    b.Effect(Instr { Op: "Check", Inputs: []Use { Any(one) }, Lazy: &DeoptFrame { Values: []*ValueNode { one } } })
    b.Jump(merge)

    /* phi with an input from nowhere */
    b.SetBlock(merge)
    p := b.Phi(merge, Tagged, Incoming { entry, one }, Incoming { merge, one })
    b.Return(p)

    /* both problems are reported */
    _, err := b.Finish()
    require.Error(t, err)
    assert.Contains(t, err.Error(), "lazy deopt")
    assert.Contains(t, err.Error(), "predecessors")
}

func TestVerify_UseBeforeDefinition(t *testing.T) {
    b := NewBuilder()
    entry, bt, bf := b.NewBlock(), b.NewBlock(), b.NewBlock()
    one := b.Constant(Int32, 1)

    /* v is defined in one arm and used in the other */
    b.SetBlock(entry)
    b.Branch(Reg(one), bt, bf)
    b.SetBlock(bt)
    v := add(b, one, one)
    b.Return(v)
    b.SetBlock(bf)
    b.Return(v)

    /* the definition does not dominate the use */
    _, err := b.Finish()
    require.Error(t, err)
    assert.Contains(t, err.Error(), "does not dominate")
}

func TestVerifyRegisters(t *testing.T) {
    g, _, _ := buildDiamond(t)
    require.NoError(t, VerifyRegisters(g, arch.AMD64()))

    /* the return value is pinned to rax */
    cfg := arch.AMD64()
    cfg.General.Remove(arch.RAX)
    err := VerifyRegisters(g, cfg)
    require.Error(t, err)
    assert.Contains(t, err.Error(), "rax is not allocatable")
}

func TestDominatorTree(t *testing.T) {
    _, bbs, _ := buildDiamond(t)
    dom := BuildDominatorTree(bbs[0])
    assert.True(t, dom.Dominates(bbs[0], bbs[3]))
    assert.False(t, dom.Dominates(bbs[1], bbs[3]))
    assert.Equal(t, bbs[0], dom.DominatedBy[bbs[3]])
    assert.True(t, dom.Reachable(bbs[2]))
}

func TestWriteDot(t *testing.T) {
    g, _, _ := buildDiamond(t)
    var sb strings.Builder
    require.NoError(t, WriteDot(g, &sb))
    out := sb.String()
    assert.True(t, strings.HasPrefix(out, "digraph CFG {"))
    assert.Contains(t, out, `bb_0 -> bb_1 [ label = "true" ]`)
    assert.Contains(t, out, `bb_0 -> bb_2 [ label = "false" ]`)
    assert.Contains(t, out, `bb_2 -> bb_3 [ label = "goto" ]`)
}
