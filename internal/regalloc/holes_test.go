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

func TestPostDominatingHoles_Diamond(t *testing.T) {
    b := ir.NewBuilder()
    entry, bt, bf, merge := b.NewBlock(), b.NewBlock(), b.NewBlock(), b.NewBlock()

    /* entry falls through into the true arm */
    b.SetBlock(entry)
    cond := load(b, ir.Tagged)
    b.Branch(ir.Reg(cond), bt, bf)
    b.SetBlock(bt)
    b.Jump(merge)
    b.SetBlock(bf)
    b.Jump(merge)
    b.SetBlock(merge)
    b.Return(cond)

    /* compute the holes */
    g, err := b.Finish()
    require.NoError(t, err)
    ComputePostDominatingHoles(g)

    /* the jump over the false arm is a hole, the one into the merge is not */
    assert.Equal(t, merge.Control, bt.Control.NextPostDominatingHole())
    assert.Equal(t, merge.Control, bf.Control.NextPostDominatingHole())
    assert.Equal(t, bt.Control, nearestPostDominatingHole(bt.Control))
    assert.Equal(t, merge.Control, nearestPostDominatingHole(bf.Control))

    /* both arms converge on the return */
    assert.Equal(t, merge.Control, entry.Control.NextPostDominatingHole())
    assert.Nil(t, merge.Control.NextPostDominatingHole())
}

func TestPostDominatingHoles_EarlyReturn(t *testing.T) {
    b := ir.NewBuilder()
    entry, bt, bf := b.NewBlock(), b.NewBlock(), b.NewBlock()

    /* both arms return */
    b.SetBlock(entry)
    cond := load(b, ir.Tagged)
    b.Branch(ir.Reg(cond), bt, bf)
    b.SetBlock(bt)
    b.Return(cond)
    b.SetBlock(bf)
    b.Abort("unreachable")

    /* the higher terminal wins */
    g, err := b.Finish()
    require.NoError(t, err)
    ComputePostDominatingHoles(g)
    assert.Equal(t, bf.Control, entry.Control.NextPostDominatingHole())
}

func TestPostDominatingHoles_Switch(t *testing.T) {
    b := ir.NewBuilder()
    entry, c0, c1, c2, merge := b.NewBlock(), b.NewBlock(), b.NewBlock(), b.NewBlock(), b.NewBlock()

    /* three cases, two of them join again */
    b.SetBlock(entry)
    idx := load(b, ir.Int32)
    b.Switch(ir.Reg(idx), []*ir.BasicBlock { c0, c1 }, c2)
    b.SetBlock(c0)
    b.Jump(merge)
    b.SetBlock(c1)
    b.Abort("unreachable")
    b.SetBlock(c2)
    b.Jump(merge)
    b.SetBlock(merge)
    b.Return(idx)

    /* the cases meet at the return */
    g, err := b.Finish()
    require.NoError(t, err)
    ComputePostDominatingHoles(g)
    assert.Equal(t, merge.Control, entry.Control.NextPostDominatingHole())
    assert.Equal(t, merge.Control, c0.Control.NextPostDominatingHole())
}

func TestPostDominatingHoles_Loop(t *testing.T) {
    b := ir.NewBuilder()
    entry, header, body, exit := b.NewBlock(), b.NewBlock(), b.NewBlock(), b.NewBlock()

    /* a loop exiting from its header */
    b.SetBlock(entry)
    cond := load(b, ir.Tagged)
    b.Jump(header)
    b.SetBlock(header)
    b.Branch(ir.Reg(cond), body, exit)
    b.SetBlock(body)
    b.JumpLoop(header)
    b.SetBlock(exit)
    b.Return(cond)

    /* the back edge ends the chain of the loop body */
    g, err := b.Finish()
    require.NoError(t, err)
    ComputePostDominatingHoles(g)
    assert.Equal(t, exit.Control, header.Control.NextPostDominatingHole())
    assert.Equal(t, exit.Control, entry.Control.NextPostDominatingHole())
    assert.Nil(t, body.Control.NextPostDominatingHole())
}
