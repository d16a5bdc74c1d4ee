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

// Use is an input under construction.
type Use struct {
    Value  Value
    Policy Operand
}

// Any accepts the value wherever it lives, including a constant.
func Any(v Value) Use {
    return Use { v, Unallocated(PolicyRegisterOrSlotOrConstant) }
}

// RegOrSlot accepts the value in a register or a stack slot.
func RegOrSlot(v Value) Use {
    return Use { v, Unallocated(PolicyRegisterOrSlot) }
}

func Reg(v Value) Use {
    return Use { v, Unallocated(PolicyMustHaveRegister) }
}

func Fixed(v Value, reg arch.GeneralRegister) Use {
    return Use { v, FixedRegisterPolicy(reg) }
}

func FixedDouble(v Value, reg arch.DoubleRegister) Use {
    return Use { v, FixedDoublePolicy(reg) }
}

// Instr describes a node to append to the current block. A zero Result
// makes an effect node.
type Instr struct {
    Op          string
    Repr        Representation
    Result      Operand
    Inputs      []Use
    Call        bool
    Eager       *DeoptFrame
    Lazy        *DeoptFrame
    Temps       int
    DoubleTemps int
}

// Incoming is a phi input arriving from a predecessor.
type Incoming struct {
    From  *BasicBlock
    Value Value
}

// Builder constructs a graph block by block in layout order.
type Builder struct {
    g  *Graph
    bb *BasicBlock
}

func NewBuilder() *Builder {
    return &Builder { g: new(Graph) }
}

// NewBlock appends an empty block to the layout.
func (self *Builder) NewBlock() *BasicBlock {
    bb := &BasicBlock { Id: len(self.g.Blocks), graph: self.g }
    self.g.Blocks = append(self.g.Blocks, bb)
    return bb
}

// NewExceptionHandler appends an exception handler entry block.
func (self *Builder) NewExceptionHandler() *BasicBlock {
    bb := self.NewBlock()
    bb.ExceptionHandler = true
    return bb
}

// SetBlock selects the block new nodes are appended to.
func (self *Builder) SetBlock(bb *BasicBlock) {
    self.bb = bb
}

func (self *Builder) Block() *BasicBlock {
    return self.bb
}

func (self *Builder) Constant(repr Representation, imm int64) *ValueNode {
    v := &ValueNode {
        NodeBase : NodeBase { Op: "Constant", Props: PropConstant },
        Repr     : repr,
        Imm      : imm,
        result   : Unallocated(PolicyNone),
        spill    : ConstantOperand(len(self.g.Constants)),
    }
    self.g.Constants = append(self.g.Constants, v)
    return v
}

func (self *Builder) base(ins Instr) NodeBase {
    ret := NodeBase {
        block     : self.current(),
        Op        : ins.Op,
        NumTemps  : ins.Temps,
        NumDTemps : ins.DoubleTemps,
    }

    /* node properties */
    if ins.Call {
        ret.Props |= PropCall
    }

    /* inputs */
    for _, u := range ins.Inputs {
        ret.inputs = append(ret.inputs, NewInput(u.Value.Value(), u.Policy))
    }

    /* deopt snapshots */
    if ins.Eager != nil { ret.EagerDeopt = NewDeoptInfo(ins.Eager) }
    if ins.Lazy  != nil { ret.LazyDeopt  = NewDeoptInfo(ins.Lazy) }
    return ret
}

func (self *Builder) current() *BasicBlock {
    if self.bb == nil {
        panic("regalloc: no current block")
    } else if self.bb.Control != nil {
        panic(fmt.Sprintf("regalloc: bb_%d is already terminated", self.bb.Id))
    } else {
        return self.bb
    }
}

// Value appends a value node.
func (self *Builder) Value(ins Instr) *ValueNode {
    if !ins.Result.IsUnallocated() {
        panic("regalloc: value node without a result policy: " + ins.Op)
    }
    v := &ValueNode { NodeBase: self.base(ins), Repr: ins.Repr, result: ins.Result }
    self.bb.Nodes = append(self.bb.Nodes, v)
    return v
}

// Effect appends a node that produces no value.
func (self *Builder) Effect(ins Instr) *EffectNode {
    if ins.Result.IsValid() {
        panic("regalloc: effect node with a result policy: " + ins.Op)
    }
    v := &EffectNode { NodeBase: self.base(ins) }
    self.bb.Nodes = append(self.bb.Nodes, v)
    return v
}

// Phi adds a phi to `owner`. Inputs may be given in any order and added
// later with AddIncoming, the builder sorts them by predecessor.
func (self *Builder) Phi(owner *BasicBlock, repr Representation, incoming ...Incoming) *Phi {
    p := &Phi {
        ValueNode: ValueNode {
            NodeBase : NodeBase { block: owner, Op: "Phi", Props: PropPhi },
            Repr     : repr,
            result   : Unallocated(PolicyRegisterOrSlot),
        },
    }
    for _, in := range incoming {
        p.AddIncoming(in.From, in.Value)
    }
    owner.Phis = append(owner.Phis, p)
    return p
}

// ExceptionPhi adds the phi receiving the thrown object to a handler block.
func (self *Builder) ExceptionPhi(owner *BasicBlock) *Phi {
    p := self.Phi(owner, Tagged)
    p.ExceptionObject = true
    return p
}

func (self *Phi) AddIncoming(from *BasicBlock, v Value) {
    self.from = append(self.from, from)
    self.inputs = append(self.inputs, NewInput(v.Value(), Unallocated(PolicyRegisterOrSlotOrConstant)))
}

func controlBase(op string, inputs ...Use) ControlBase {
    ret := ControlBase { NodeBase: NodeBase { Op: op } }
    for _, u := range inputs {
        ret.inputs = append(ret.inputs, NewInput(u.Value.Value(), u.Policy))
    }
    return ret
}

func (self *Builder) terminate(c ControlNode, targets ...*BasicBlock) {
    bb := self.current()
    c.Base().block = bb
    bb.Control = c

    /* record the edges */
    for _, t := range targets {
        t.Pred = append(t.Pred, bb)
    }
}

func (self *Builder) Jump(target *BasicBlock) *Jump {
    c := &Jump { ControlBase: controlBase("Jump"), Target: target }
    self.terminate(c, target)
    return c
}

func (self *Builder) JumpToInlined(target *BasicBlock) *JumpToInlined {
    c := &JumpToInlined { ControlBase: controlBase("JumpToInlined"), Target: target }
    self.terminate(c, target)
    return c
}

func (self *Builder) JumpLoop(header *BasicBlock) *JumpLoop {
    c := &JumpLoop { ControlBase: controlBase("JumpLoop"), Target: header }
    self.terminate(c, header)
    return c
}

func (self *Builder) Branch(cond Use, ifTrue *BasicBlock, ifFalse *BasicBlock) *Branch {
    c := &Branch { ControlBase: controlBase("Branch", cond), IfTrue: ifTrue, IfFalse: ifFalse }
    self.terminate(c, ifTrue, ifFalse)
    return c
}

func (self *Builder) Switch(index Use, targets []*BasicBlock, otherwise *BasicBlock) *Switch {
    c := &Switch { ControlBase: controlBase("Switch", index), Targets: targets, Fallthrough: otherwise }
    self.terminate(c, Successors(c)...)
    return c
}

// Return returns v in the return register.
func (self *Builder) Return(v Value) *Return {
    c := &Return { ControlBase: controlBase("Return", Fixed(v, arch.RAX)) }
    self.terminate(c)
    return c
}

func (self *Builder) Deopt(frame *DeoptFrame) *Deopt {
    c := &Deopt { ControlBase: controlBase("Deopt") }
    c.EagerDeopt = NewDeoptInfo(frame)
    self.terminate(c)
    return c
}

func (self *Builder) Abort(reason string) *Abort {
    c := &Abort { ControlBase: controlBase("Abort"), Reason: reason }
    self.terminate(c)
    return c
}

// Finish splits critical edges, numbers the nodes and verifies the graph.
func (self *Builder) Finish() (*Graph, error) {
    if len(self.g.Blocks) == 0 {
        return nil, GraphError { Reason: "empty graph" }
    }

    /* link and verify */
    SplitCriticalEdges(self.g)
    err := multierr.Append(self.g.link(), Verify(self.g))

    /* the builder cannot be reused */
    g := self.g
    self.g, self.bb = nil, nil

    /* check for errors */
    if err != nil {
        return nil, err
    } else {
        return g, nil
    }
}
