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

type _CrEdge struct {
    to   *BasicBlock
    from *BasicBlock
    idx  int
}

// SplitCriticalEdges splits critical edges (those that go from a
// conditional control node to a block with more than one predecessor) by
// inserting an empty block that jumps to the original target.
//
// The allocator hands over register state along every edge into a merge
// block, which requires the edge to come from an unconditional jump.
func SplitCriticalEdges(g *Graph) {
    var edges []_CrEdge

    /* find all critical edges */
    for _, bb := range g.Blocks {
        if bb.Control != nil && IsConditional(bb.Control) {
            for i, succ := range Successors(bb.Control) {
                if len(succ.Pred) > 1 {
                    edges = append(edges, _CrEdge {
                        to   : succ,
                        from : bb,
                        idx  : i,
                    })
                }
            }
        }
    }

    /* insert empty block between the edges */
    for _, e := range edges {
        bb := &BasicBlock { graph: g }
        jmp := &Jump { ControlBase: controlBase("Jump"), Target: e.to }

        /* link the new block */
        jmp.block = bb
        bb.Control = jmp
        bb.Pred = []*BasicBlock { e.from }

        /* update the successor */
        replaceSuccessorAt(e.from.Control, e.idx, bb)

        /* update the predecessor */
        for i, p := range e.to.Pred {
            if p == e.from {
                e.to.Pred[i] = bb
                break
            }
        }

        /* update the Phi nodes */
        for _, p := range e.to.Phis {
            for i, f := range p.from {
                if f == e.from {
                    p.from[i] = bb
                    break
                }
            }
        }

        /* the new block falls through into the target */
        g.insertBlockBefore(bb, e.to)
    }
}
