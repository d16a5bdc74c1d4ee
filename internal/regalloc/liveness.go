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
    `github.com/cloudwego/maglev/internal/ir`
    `github.com/oleiade/lane`
)

// _LoopUsedNodes collects the values defined before a loop header and
// used inside the loop, in the order they were first seen.
type _LoopUsedNodes struct {
    header *ir.BasicBlock
    nodes  []*ir.ValueNode
    seen   map[*ir.ValueNode]struct{}
}

func newLoopUsedNodes(header *ir.BasicBlock) *_LoopUsedNodes {
    return &_LoopUsedNodes {
        header : header,
        seen   : make(map[*ir.ValueNode]struct{}),
    }
}

func (self *_LoopUsedNodes) add(v *ir.ValueNode) {
    if self == nil || v.IsConstant() || v.Id() >= self.header.FirstId() {
        return
    }
    if _, ok := self.seen[v]; !ok {
        self.seen[v] = struct{}{}
        self.nodes = append(self.nodes, v)
    }
}

type _UseMarker struct {
    loops *lane.Stack
}

func (self *_UseMarker) loop() *_LoopUsedNodes {
    if self.loops.Empty() {
        return nil
    } else {
        return self.loops.Head().(*_LoopUsedNodes)
    }
}

func (self *_UseMarker) use(v *ir.ValueNode, id ir.NodeId, in *ir.Input) {
    v.RecordNextUse(id, in)
    self.loop().add(v)
}

func (self *_UseMarker) inputs(nb *ir.NodeBase) {
    ins := nb.Inputs()
    for i := range ins {
        self.use(ins[i].Node(), nb.Id(), &ins[i])
    }
}

func (self *_UseMarker) deopt(nb *ir.NodeBase, di *ir.DeoptInfo) {
    if di != nil {
        for i := range di.Locations {
            self.use(di.Locations[i].Node(), nb.Id(), &di.Locations[i])
        }
    }
}

func (self *_UseMarker) node(nb *ir.NodeBase) {
    self.inputs(nb)
    self.deopt(nb, nb.EagerDeopt)
    self.deopt(nb, nb.LazyDeopt)
}

// phis records the phi inputs flowing along the edge from `pred` into `target`.
func (self *_UseMarker) phis(c ir.ControlNode, pred *ir.BasicBlock, target *ir.BasicBlock) {
    for _, p := range target.Phis {
        in := p.Input(pred.PredecessorId())
        self.use(in.Node(), c.Base().Id(), in)
    }
}

// MarkUses removes dead phis, then builds the use chain and live range of
// every value in a single pass over the layout. Values defined before a
// loop and used inside it stay live until the loop's back edge, which
// records them as used nodes of its JumpLoop.
func MarkUses(g *ir.Graph) {
    m := _UseMarker { loops: lane.NewStack() }
    removeDeadPhis(g)

    /* start from a clean slate */
    for _, c := range g.Constants {
        c.ResetUses()
    }
    for _, bb := range g.Blocks {
        for _, p := range bb.Phis {
            p.ResetUses()
        }
        for _, n := range bb.Nodes {
            if v, ok := n.(*ir.ValueNode); ok {
                v.ResetUses()
            }
        }
    }

    /* walk in layout order */
    for _, bb := range g.Blocks {
        if bb.IsLoopHeader() {
            m.loops.Push(newLoopUsedNodes(bb))
        }

        /* regular nodes */
        for _, n := range bb.Nodes {
            m.node(n.Base())
        }

        /* control node */
        c := bb.Control
        m.node(c.Base())

        /* edges handing values to phis */
        switch v := c.(type) {
            case *ir.Jump          : m.phis(v, bb, v.Target)
            case *ir.JumpToInlined : m.phis(v, bb, v.Target)
            case *ir.JumpLoop      : m.jumpLoop(v, bb)
        }
    }
}

func (self *_UseMarker) jumpLoop(c *ir.JumpLoop, bb *ir.BasicBlock) {
    if self.loops.Empty() {
        invariantAt(c, "back edge without an open loop")
    }

    /* close the innermost loop */
    lp := self.loops.Pop().(*_LoopUsedNodes)
    if lp.header != c.Target {
        invariantAt(c, "back edge to bb_%d closes the loop of bb_%d", c.Target.Id, lp.header.Id)
    }

    /* the back edge feeds the header phis */
    self.phis(c, bb, c.Target)
    c.UsedNodes = make([]ir.Input, len(lp.nodes))

    /* extend the live range of values used in the loop up to the back edge */
    for i, v := range lp.nodes {
        c.UsedNodes[i] = ir.NewInput(v, ir.Unallocated(ir.PolicyRegisterOrSlot))
        self.use(v, c.Id(), &c.UsedNodes[i])
    }
}

// removeDeadPhis drops phis that no node, deopt snapshot or live phi uses.
func removeDeadPhis(g *ir.Graph) {
    q := lane.NewQueue()
    live := make(map[*ir.ValueNode]bool)
    phis := make(map[*ir.ValueNode]*ir.Phi)

    /* index the phis */
    for _, bb := range g.Blocks {
        for _, p := range bb.Phis {
            phis[&p.ValueNode] = p
        }
    }

    /* mark a phi as live and schedule its inputs */
    mark := func(v *ir.ValueNode) {
        if p, ok := phis[v]; ok && !live[v] {
            live[v] = true
            q.Enqueue(p)
        }
    }

    /* phis used by anything but another phi are live */
    for _, bb := range g.Blocks {
        nodes := make([]ir.Node, 0, len(bb.Nodes) + 1)
        nodes = append(append(nodes, bb.Nodes...), bb.Control)
        for _, n := range nodes {
            nb := n.Base()
            for i := range nb.Inputs() {
                mark(nb.Input(i).Node())
            }
            for _, di := range []*ir.DeoptInfo { nb.EagerDeopt, nb.LazyDeopt } {
                if di != nil {
                    for i := range di.Locations {
                        mark(di.Locations[i].Node())
                    }
                }
            }
        }
    }

    /* propagate through phi inputs */
    for !q.Empty() {
        p := q.Dequeue().(*ir.Phi)
        for i := 0; i < p.InputCount(); i++ {
            mark(p.Input(i).Node())
        }
    }

    /* remove the rest */
    for _, bb := range g.Blocks {
        for i := len(bb.Phis) - 1; i >= 0; i-- {
            if !live[&bb.Phis[i].ValueNode] {
                bb.RemovePhi(i)
            }
        }
    }
}
