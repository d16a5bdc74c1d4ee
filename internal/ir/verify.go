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

    `github.com/cloudwego/maglev/internal/arch`
    `go.uber.org/multierr`
)

// GraphError describes a malformed graph.
type GraphError struct {
    Block  int
    Node   NodeId
    Reason string
}

func (self GraphError) Error() string {
    if self.Node == InvalidNodeId {
        return fmt.Sprintf("bb_%d: %s", self.Block, self.Reason)
    } else {
        return fmt.Sprintf("bb_%d: n%d: %s", self.Block, self.Node, self.Reason)
    }
}

type _Verifier struct {
    err error
    dom DominatorTree
}

func (self *_Verifier) fail(bb *BasicBlock, id NodeId, format string, args ...interface{}) {
    self.err = multierr.Append(self.err, GraphError {
        Block  : bb.Id,
        Node   : id,
        Reason : fmt.Sprintf(format, args...),
    })
}

// Verify checks the structural invariants the allocator relies on and
// returns every violation found.
func Verify(g *Graph) error {
    if len(g.Blocks) == 0 {
        return GraphError { Reason: "empty graph" }
    }

    /* dominance is checked for blocks reachable from the entry */
    v := &_Verifier { dom: BuildDominatorTree(g.Entry()) }
    for _, bb := range g.Blocks {
        v.block(bb)
    }
    return v.err
}

func (self *_Verifier) block(bb *BasicBlock) {
    if bb.Control == nil {
        self.fail(bb, InvalidNodeId, "block is not terminated")
        return
    }

    /* phis live in merge points only */
    if bb.HasPhi() && len(bb.Pred) < 2 && !bb.loop && !bb.ExceptionHandler {
        self.fail(bb, InvalidNodeId, "phis in a block with %d predecessor(s)", len(bb.Pred))
    }

    /* handler and loop entries */
    if bb.ExceptionHandler && len(bb.Pred) != 0 {
        self.fail(bb, InvalidNodeId, "exception handler with normal predecessors")
    }
    if bb.ExceptionHandler && bb.loop {
        self.fail(bb, InvalidNodeId, "exception handler is a loop header")
    }

    /* check every node */
    for _, p := range bb.Phis { self.phi(bb, p) }
    for _, n := range bb.Nodes { self.node(bb, n) }
    self.node(bb, bb.Control)
    self.control(bb)
}

func (self *_Verifier) phi(bb *BasicBlock, p *Phi) {
    if p.Repr.IsDouble() {
        self.fail(bb, p.id, "phi with %s representation", p.Repr)
    }

    /* exception phis receive their value from the unwinder */
    if p.ExceptionObject {
        if !bb.ExceptionHandler { self.fail(bb, p.id, "exception phi outside an exception handler") }
        if len(p.inputs) != 0 { self.fail(bb, p.id, "exception phi with inputs") }
        return
    }

    /* handlers only have exception phis */
    if bb.ExceptionHandler {
        self.fail(bb, p.id, "regular phi in an exception handler")
        return
    }

    /* each input is used at the end of its predecessor */
    for i := range p.inputs {
        if i < len(bb.Pred) && bb.Pred[i].Control != nil {
            self.use(bb.Pred[i], bb.Pred[i].Control.Base().id, &p.inputs[i])
        }
    }
}

func (self *_Verifier) use(bb *BasicBlock, at NodeId, in *Input) {
    v := in.node
    if v == nil {
        self.fail(bb, at, "input without a value")
        return
    }

    /* ids follow the layout order */
    if v.id == InvalidNodeId || v.id >= at {
        self.fail(bb, at, "%s used before its definition", v.Name())
        return
    }

    /* the definition must dominate the use */
    if !v.IsConstant() && v.block != nil && self.dom.Reachable(bb) && !self.dom.Dominates(v.block, bb) {
        self.fail(bb, at, "definition of %s in bb_%d does not dominate the use", v.Name(), v.block.Id)
    }
}

func (self *_Verifier) node(bb *BasicBlock, n Node) {
    nb := n.Base()
    for i := range nb.inputs {
        self.use(bb, nb.id, &nb.inputs[i])
        self.input(bb, nb, &nb.inputs[i])
    }

    /* deopt snapshots */
    for _, di := range []*DeoptInfo { nb.EagerDeopt, nb.LazyDeopt } {
        if di != nil {
            for i := range di.Locations {
                self.use(bb, nb.id, &di.Locations[i])
            }
        }
    }

    /* temporaries */
    if nb.NumTemps < 0 || nb.NumDTemps < 0 {
        self.fail(bb, nb.id, "negative temporary count")
    }

    /* lazy deopts only make sense after calls */
    if nb.LazyDeopt != nil && !nb.IsCall() {
        self.fail(bb, nb.id, "lazy deopt on a node that is not a call")
    }

    /* results */
    if v, ok := n.(*ValueNode); ok {
        self.result(bb, v)
    }
}

func (self *_Verifier) input(bb *BasicBlock, nb *NodeBase, in *Input) {
    op := in.operand
    dbl := in.node.UseDoubleRegister()

    /* inputs start unallocated */
    if !op.IsUnallocated() {
        self.fail(bb, nb.id, "input %s is already allocated", in)
        return
    }

    /* check the policy */
    switch op.Policy {
        case PolicyFixedRegister: {
            if dbl { self.fail(bb, nb.id, "double value %s in a general register", in.node.Name()) }
            if !arch.GeneralRegister(op.Index).IsValid() { self.fail(bb, nb.id, "invalid register in %s", in) }
        }
        case PolicyFixedDoubleRegister: {
            if !dbl { self.fail(bb, nb.id, "general value %s in a double register", in.node.Name()) }
            if !arch.DoubleRegister(op.Index).IsValid() { self.fail(bb, nb.id, "invalid register in %s", in) }
        }
        case PolicyMustHaveRegister, PolicyRegisterOrSlot, PolicyRegisterOrSlotOrConstant: {
            break
        }
        default: {
            self.fail(bb, nb.id, "invalid input policy %s", op.Policy)
        }
    }
}

func (self *_Verifier) result(bb *BasicBlock, v *ValueNode) {
    op := v.result
    dbl := v.UseDoubleRegister()

    /* results start unallocated */
    if !op.IsUnallocated() {
        self.fail(bb, v.id, "result is already allocated")
        return
    }

    /* check the policy */
    switch op.Policy {
        case PolicyFixedRegister: {
            if dbl { self.fail(bb, v.id, "double result in a general register") }
            if !arch.GeneralRegister(op.Index).IsValid() { self.fail(bb, v.id, "invalid result register") }
        }
        case PolicyFixedDoubleRegister: {
            if !dbl { self.fail(bb, v.id, "general result in a double register") }
            if !arch.DoubleRegister(op.Index).IsValid() { self.fail(bb, v.id, "invalid result register") }
        }
        case PolicyMustHaveRegister: {
            break
        }
        case PolicyFixedSlot: {
            if op.Index >= 0 { self.fail(bb, v.id, "fixed result slot %d is not a frame parameter slot", op.Index) }
        }
        case PolicySameAsInput: {
            self.sameAsInput(bb, v)
        }
        default: {
            self.fail(bb, v.id, "invalid result policy %s", op.Policy)
        }
    }
}

func (self *_Verifier) sameAsInput(bb *BasicBlock, v *ValueNode) {
    i := v.result.Index
    if i < 0 || i >= len(v.inputs) {
        self.fail(bb, v.id, "result refers to input %d out of %d", i, len(v.inputs))
        return
    }

    /* the input must be in a register of the same class */
    in := &v.inputs[i]
    if !in.operand.IsUnallocated() {
        return
    }

    /* check the input policy */
    switch in.operand.Policy {
        case PolicyMustHaveRegister, PolicyFixedRegister, PolicyFixedDoubleRegister: {
            if in.node.UseDoubleRegister() != v.UseDoubleRegister() {
                self.fail(bb, v.id, "result and input %d are in different register classes", i)
            }
        }
        default: {
            self.fail(bb, v.id, "result reuses input %d which is not in a register", i)
        }
    }
}

func (self *_Verifier) control(bb *BasicBlock) {
    c := bb.Control
    id := c.Base().id

    /* condition inputs */
    switch c.(type) {
        case *Branch, *Switch: {
            if len(c.Base().inputs) != 1 {
                self.fail(bb, id, "conditional control node with %d inputs", len(c.Base().inputs))
            }
        }
    }

    /* edges */
    for _, succ := range Successors(c) {
        if _, ok := c.(*JumpLoop); ok {
            if succ.Id > bb.Id { self.fail(bb, id, "loop back edge to bb_%d goes forward", succ.Id) }
        } else if succ.Id <= bb.Id {
            self.fail(bb, id, "backward edge to bb_%d is not a JumpLoop", succ.Id)
        }
        if succ.ExceptionHandler {
            self.fail(bb, id, "edge into exception handler bb_%d", succ.Id)
        }
        if IsConditional(c) && len(succ.Pred) != 1 {
            self.fail(bb, id, "critical edge to bb_%d", succ.Id)
        }
    }
}

// VerifyRegisters checks that every node can be satisfied with the
// registers in `cfg`.
func VerifyRegisters(g *Graph, cfg *arch.RegisterConfig) error {
    v := new(_Verifier)
    for _, bb := range g.Blocks {
        for _, n := range bb.Nodes { v.registers(bb, n, cfg) }
        if bb.Control != nil { v.registers(bb, bb.Control, cfg) }
    }
    return v.err
}

func (self *_Verifier) registers(bb *BasicBlock, n Node, cfg *arch.RegisterConfig) {
    nb := n.Base()
    gpr := make(map[*ValueNode]bool)
    fpr := make(map[*ValueNode]bool)

    /* register inputs */
    for i := range nb.inputs {
        in := &nb.inputs[i]
        op := in.operand
        if !op.IsUnallocated() {
            continue
        }

        /* check the fixed registers */
        switch op.Policy {
            case PolicyFixedRegister       : if !cfg.IsAllocatable(op.Register()) { self.fail(bb, nb.id, "%s is not allocatable", op.Register()) }
            case PolicyFixedDoubleRegister : if !cfg.IsAllocatableDouble(op.DoubleRegister()) { self.fail(bb, nb.id, "%s is not allocatable", op.DoubleRegister()) }
            case PolicyMustHaveRegister    : break
            default                        : continue
        }

        /* count the values in registers */
        if in.node.UseDoubleRegister() {
            fpr[in.node] = true
        } else {
            gpr[in.node] = true
        }
    }

    /* fixed results */
    if v, ok := n.(*ValueNode); ok && v.result.IsUnallocated() {
        switch v.result.Policy {
            case PolicyFixedRegister       : if !cfg.IsAllocatable(v.result.Register()) { self.fail(bb, nb.id, "%s is not allocatable", v.result.Register()) }
            case PolicyFixedDoubleRegister : if !cfg.IsAllocatableDouble(v.result.DoubleRegister()) { self.fail(bb, nb.id, "%s is not allocatable", v.result.DoubleRegister()) }
        }
    }

    /* registers needed at the same time */
    if len(gpr) + nb.NumTemps > cfg.General.Count() {
        self.fail(bb, nb.id, "needs %d general registers, only %d allocatable", len(gpr) + nb.NumTemps, cfg.General.Count())
    }
    if len(fpr) + nb.NumDTemps > cfg.Double.Count() {
        self.fail(bb, nb.id, "needs %d double registers, only %d allocatable", len(fpr) + nb.NumDTemps, cfg.Double.Count())
    }
}
