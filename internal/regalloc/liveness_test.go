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

package regalloc

import (
    `testing`

    `github.com/cloudwego/maglev/internal/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestMarkUses_UseChain(t *testing.T) {
    b := ir.NewBuilder()
    entry := b.NewBlock()

    /* x is read twice by the same node */
    b.SetBlock(entry)
    x := load(b, ir.Tagged)
    y := add(b, x, x)
    z := add(b, y, x)
    ret := b.Return(z)

    /* mark the uses */
    g, err := b.Finish()
    require.NoError(t, err)
    MarkUses(g)

    /* the chain links every use in order */
    assert.Equal(t, y.Id(), x.NextUse())
    assert.Equal(t, y.Id(), y.Input(0).NextUse())
    assert.Equal(t, z.Id(), y.Input(1).NextUse())
    assert.Equal(t, ir.InvalidNodeId, z.Input(1).NextUse())
    assert.Equal(t, ir.LiveRange { Start: x.Id(), End: z.Id() }, x.LiveRange())
    assert.Equal(t, ret.Id(), z.LiveRange().End)

    /* marking again gives the same chain */
    MarkUses(g)
    assert.Equal(t, y.Id(), x.NextUse())
    assert.Equal(t, ir.InvalidNodeId, z.Input(1).NextUse())
}

func TestMarkUses_RemovesDeadPhis(t *testing.T) {
    b := ir.NewBuilder()
    entry, header, body, exit := b.NewBlock(), b.NewBlock(), b.NewBlock(), b.NewBlock()
    zero := b.Constant(ir.Int32, 0)

    /* q only feeds itself, r is returned */
    b.SetBlock(entry)
    cond := load(b, ir.Tagged)
    b.Jump(header)
    b.SetBlock(header)
    q := b.Phi(header, ir.Int32, ir.Incoming { From: entry, Value: zero })
    r := b.Phi(header, ir.Tagged, ir.Incoming { From: entry, Value: cond })
    b.Branch(ir.Reg(cond), body, exit)
    b.SetBlock(body)
    q.AddIncoming(body, q)
    r.AddIncoming(body, r)
    jl := b.JumpLoop(header)
    b.SetBlock(exit)
    ret := b.Return(r)

    /* mark the uses */
    g, err := b.Finish()
    require.NoError(t, err)
    MarkUses(g)

    /* only the returned phi survives */
    require.Len(t, header.Phis, 1)
    assert.Equal(t, r, header.Phis[0])
    assert.True(t, zero.IsDead())

    /* cond is used in the loop and fed to r */
    require.Len(t, jl.UsedNodes, 1)
    assert.Equal(t, cond, jl.UsedNodes[0].Node())
    assert.Equal(t, jl.Id(), cond.LiveRange().End)
    assert.Equal(t, ret.Id(), r.LiveRange().End)
}

func TestMarkUses_NestedLoops(t *testing.T) {
    b := ir.NewBuilder()
    bbs := make([]*ir.BasicBlock, 7)
    for i := range bbs {
        bbs[i] = b.NewBlock()
    }

    /* the outer loop tests a, the inner one tests x */
    b.SetBlock(bbs[0])
    a := load(b, ir.Tagged)
    x := load(b, ir.Tagged)
    b.Jump(bbs[1])
    b.SetBlock(bbs[1])
    b.Jump(bbs[2])
    b.SetBlock(bbs[2])
    b.Branch(ir.Reg(x), bbs[3], bbs[4])
    b.SetBlock(bbs[3])
    inner := b.JumpLoop(bbs[2])
    b.SetBlock(bbs[4])
    b.Branch(ir.Reg(a), bbs[5], bbs[6])
    b.SetBlock(bbs[5])
    outer := b.JumpLoop(bbs[1])
    b.SetBlock(bbs[6])
    ret := b.Return(a)

    /* mark the uses */
    g, err := b.Finish()
    require.NoError(t, err)
    MarkUses(g)

    /* the inner back edge uses x, the outer one both */
    require.Len(t, inner.UsedNodes, 1)
    assert.Equal(t, x, inner.UsedNodes[0].Node())
    require.Len(t, outer.UsedNodes, 2)
    assert.Equal(t, x, outer.UsedNodes[0].Node())
    assert.Equal(t, a, outer.UsedNodes[1].Node())
    assert.Equal(t, outer.Id(), x.LiveRange().End)
    assert.Equal(t, ret.Id(), a.LiveRange().End)

    /* and the allocation keeps both in registers */
    allocate(t, g, 0)
    assert.False(t, a.IsSpilled())
    assert.False(t, x.IsSpilled())
    assert.True(t, outer.UsedNodes[0].Operand().IsRegister())
    assert.True(t, outer.UsedNodes[1].Operand().IsRegister())
}

func TestReaches(t *testing.T) {
    b := ir.NewBuilder()
    entry, header, body, exit, side := b.NewBlock(), b.NewBlock(), b.NewBlock(), b.NewBlock(), b.NewBlock()

    /* entry -> header <-> body, header -> exit, side is dead */
    b.SetBlock(entry)
    c := load(b, ir.Tagged)
    b.Jump(header)
    b.SetBlock(header)
    b.Branch(ir.Reg(c), body, exit)
    b.SetBlock(body)
    b.JumpLoop(header)
    b.SetBlock(exit)
    b.Return(c)
    b.SetBlock(side)
    b.Abort("dead")

    /* build the block graph */
    g, err := b.Finish()
    require.NoError(t, err)
    a := newAllocator(g, Config {})

    /* check the reachability */
    assert.True(t, a.reaches(entry, exit))
    assert.True(t, a.reaches(body, header))
    assert.True(t, a.reaches(body, body))
    assert.True(t, a.reaches(body, exit))
    assert.False(t, a.reaches(exit, header))
    assert.False(t, a.reaches(entry, side))
    assert.False(t, a.reaches(side, entry))
    assert.Equal(t, len(g.Blocks), a.cfg.Nodes().Len())
}
