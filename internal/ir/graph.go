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
    `fmt`
    `strings`

    `go.uber.org/multierr`
    `golang.org/x/exp/slices`
)

// Graph is a scheduled control-flow graph, blocks are kept in layout order.
type Graph struct {
    Blocks             []*BasicBlock
    Constants          []*ValueNode
    TaggedStackSlots   int
    UntaggedStackSlots int
    arena              Arena
    maxId              NodeId
}

func (self *Graph) Entry() *BasicBlock {
    return self.Blocks[0]
}

func (self *Graph) Arena() *Arena {
    return &self.arena
}

// MaxId is the largest node id handed out by the builder.
func (self *Graph) MaxId() NodeId {
    return self.maxId
}

func (self *Graph) insertBlockBefore(bb *BasicBlock, before *BasicBlock) {
    i := slices.Index(self.Blocks, before)
    self.Blocks = slices.Insert(self.Blocks, i, bb)
}

// link derives everything the allocator reads from the block structure:
// layout ids, loop headers, predecessor ids, phi input order, merge flags
// and node ids.
func (self *Graph) link() (err error) {
    for i, bb := range self.Blocks {
        bb.Id = i
        bb.graph = self
    }

    /* loop headers and predecessor ids */
    for _, bb := range self.Blocks {
        if bb.Control != nil {
            if jl, ok := bb.Control.(*JumpLoop); ok {
                jl.Target.loop = true
            }
            if t, ok := UnconditionalTarget(bb.Control); ok {
                bb.predId = slices.Index(t.Pred, bb)
            }
        }
    }

    /* phi inputs follow the predecessor order */
    for _, bb := range self.Blocks {
        for _, p := range bb.Phis {
            err = multierr.Append(err, p.orderInputs(bb))
        }
    }

    /* blocks entered through anything but a conditional fallthrough start from a merge state */
    for i, bb := range self.Blocks {
        bb.merge = bb.loop || bb.ExceptionHandler || len(bb.Pred) > 1 || (i != 0 && len(bb.Pred) == 0)
        for _, p := range bb.Pred {
            if _, ok := UnconditionalTarget(p.Control); ok || p.Id + 1 != i {
                bb.merge = true
            }
        }
    }

    /* number everything */
    self.number()
    return
}

func (self *Graph) number() {
    id := NodeId(1)
    for _, c := range self.Constants {
        c.id, c.live.Start = id, id
        id++
    }

    /* phis, nodes and the control node of each block */
    for _, bb := range self.Blocks {
        bb.firstId = id
        for _, p := range bb.Phis {
            p.id, p.live.Start = id, id
            id++
        }
        for _, n := range bb.Nodes {
            n.Base().id = id
            if v, ok := n.(*ValueNode); ok {
                v.live.Start = id
            }
            id++
        }
        if bb.Control != nil {
            bb.Control.Base().id = id
            id++
        }
    }

    /* the last id handed out */
    self.maxId = id - 1
}

func (self *Phi) orderInputs(owner *BasicBlock) error {
    if self.ExceptionObject {
        return nil
    }

    /* one input per predecessor */
    if len(self.from) != len(owner.Pred) {
        return GraphError {
            Block  : owner.Id,
            Reason : fmt.Sprintf("phi has %d inputs but the block has %d predecessors", len(self.from), len(owner.Pred)),
        }
    }

    /* match every predecessor with the first unused input from it */
    used := make([]bool, len(self.from))
    inputs := make([]Input, len(owner.Pred))

    /* reorder the inputs */
    for i, p := range owner.Pred {
        j := -1
        for k, f := range self.from {
            if f == p && !used[k] {
                j = k
                break
            }
        }
        if j < 0 {
            return GraphError { Block: owner.Id, Reason: fmt.Sprintf("phi has no input from bb_%d", p.Id) }
        }
        used[j] = true
        inputs[i] = self.inputs[j]
    }

    /* update the phi */
    self.inputs = inputs
    self.from = append(self.from[:0], owner.Pred...)
    return nil
}

func (self *Graph) String() string {
    var sb strings.Builder
    fmt.Fprintf(&sb, "stack slots: %d tagged, %d untagged", self.TaggedStackSlots, self.UntaggedStackSlots)

    /* constants are not part of any block */
    if len(self.Constants) != 0 {
        sb.WriteString("\nconstants:")
        for _, c := range self.Constants {
            fmt.Fprintf(&sb, "\n    %s", c)
        }
    }

    /* blocks in layout order */
    for _, bb := range self.Blocks {
        sb.WriteByte('\n')
        sb.WriteString(bb.String())
    }
    return sb.String()
}
