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
    `math/bits`
    `strings`

    `github.com/cloudwego/maglev/internal/arch`
)

// NodeId orders every node of a graph, ids are assigned in layout order.
type NodeId uint32

const InvalidNodeId NodeId = 0

// Properties are static flags of a node.
type Properties uint8

const (
    PropCall Properties = 1 << iota
    PropConstant
    PropPhi
)

// Node is implemented by every instruction kind in this package only.
type Node interface {
    fmt.Stringer
    Base() *NodeBase
    irnode()
}

// Value is anything that can be referenced as an input.
type Value interface {
    Value() *ValueNode
}

// NodeBase holds the fields shared by every node.
type NodeBase struct {
    id          NodeId
    block       *BasicBlock
    inputs      []Input
    Op          string
    Props       Properties
    EagerDeopt  *DeoptInfo
    LazyDeopt   *DeoptInfo
    NumTemps    int
    NumDTemps   int
    Temps       arch.RegList[arch.GeneralRegister]
    DoubleTemps arch.RegList[arch.DoubleRegister]
}

func (*NodeBase) irnode() {}

func (self *NodeBase) Base() *NodeBase {
    return self
}

func (self *NodeBase) Id() NodeId {
    return self.id
}

// Block returns the owning block, nil for constants and allocator inserted nodes.
func (self *NodeBase) Block() *BasicBlock {
    return self.block
}

// Inputs returns the inputs in place, allocator writes go through the returned slice.
func (self *NodeBase) Inputs() []Input {
    return self.inputs
}

func (self *NodeBase) Input(i int) *Input {
    return &self.inputs[i]
}

func (self *NodeBase) InputCount() int {
    return len(self.inputs)
}

func (self *NodeBase) IsCall() bool {
    return self.Props & PropCall != 0
}

func (self *NodeBase) inputString() string {
    ss := make([]string, 0, len(self.inputs))
    for i := range self.inputs { ss = append(ss, self.inputs[i].String()) }
    return strings.Join(ss, ", ")
}

func (self *NodeBase) tempString() string {
    var ss []string
    if !self.Temps.Empty() { ss = append(ss, "temps " + self.Temps.String()) }
    if !self.DoubleTemps.Empty() { ss = append(ss, "dtemps " + self.DoubleTemps.String()) }
    if len(ss) == 0 { return "" }
    return " [" + strings.Join(ss, ", ") + "]"
}

// Input is a use of a value, carrying the allocation constraint until the
// allocator replaces it with the resolved location.
type Input struct {
    node    *ValueNode
    operand Operand
    nextUse NodeId
}

func NewInput(v *ValueNode, policy Operand) Input {
    return Input { node: v, operand: policy }
}

func (self *Input) Node() *ValueNode {
    return self.node
}

func (self *Input) Operand() Operand {
    return self.operand
}

func (self *Input) Policy() Policy {
    if !self.operand.IsUnallocated() {
        panic("regalloc: input is already allocated: " + self.String())
    } else {
        return self.operand.Policy
    }
}

// NextUse is the id of the next use of the same value after this one.
func (self *Input) NextUse() NodeId {
    return self.nextUse
}

// SetLocation records the resolved location of this input.
func (self *Input) SetLocation(loc Operand) {
    if !loc.IsAllocated() {
        panic("regalloc: injecting unallocated location " + loc.String() + " into " + self.String())
    } else {
        self.operand = loc
    }
}

func (self *Input) String() string {
    return fmt.Sprintf("%s%s", self.node.Name(), self.operand)
}

// LiveRange is the inclusive span of ids from definition to last use.
type LiveRange struct {
    Start NodeId
    End   NodeId
}

func (self LiveRange) String() string {
    return fmt.Sprintf("[%d, %d]", self.Start, self.End)
}

// ValueNode is a node producing a value. Register set and spill location
// describe where the value currently lives while the allocator runs.
type ValueNode struct {
    NodeBase
    Repr    Representation
    Imm     int64
    result  Operand
    live    LiveRange
    nextUse NodeId
    lastUse *NodeId
    regs    uint64
    spill   Operand
    resume  bool
}

func (self *ValueNode) Value() *ValueNode {
    return self
}

func (self *ValueNode) Name() string {
    return fmt.Sprintf("n%d", self.id)
}

func (self *ValueNode) IsConstant() bool {
    return self.Props & PropConstant != 0
}

func (self *ValueNode) IsPhi() bool {
    return self.Props & PropPhi != 0
}

func (self *ValueNode) Result() Operand {
    return self.result
}

// SetResult replaces the result constraint with the allocated location.
func (self *ValueNode) SetResult(loc Operand) {
    if !loc.IsAllocated() {
        panic("regalloc: unallocated result for " + self.Name())
    } else {
        self.result = loc
    }
}

func (self *ValueNode) LiveRange() LiveRange {
    return self.live
}

func (self *ValueNode) HasValidLiveRange() bool {
    return self.live.End != InvalidNodeId
}

// ResetUses clears the use chain and the live range end.
func (self *ValueNode) ResetUses() {
    self.nextUse = InvalidNodeId
    self.lastUse = nil
    self.live.End = InvalidNodeId
}

// RecordNextUse appends a use at `id` to the use chain, uses must be
// recorded in non-decreasing id order.
func (self *ValueNode) RecordNextUse(id NodeId, in *Input) {
    if id == InvalidNodeId {
        panic("regalloc: recording use at invalid id for " + self.Name())
    }

    /* link to the previous use, if any */
    if self.lastUse == nil {
        self.nextUse = id
    } else {
        *self.lastUse = id
    }

    /* this use becomes the tail */
    in.nextUse = InvalidNodeId
    self.lastUse = &in.nextUse
    self.live.End = id
}

// NextUse is the id of the next use not yet consumed by the allocator.
func (self *ValueNode) NextUse() NodeId {
    return self.nextUse
}

func (self *ValueNode) AdvanceNextUse(id NodeId) {
    self.nextUse = id
}

func (self *ValueNode) IsDead() bool {
    return self.nextUse == InvalidNodeId
}

func (self *ValueNode) UseDoubleRegister() bool {
    return self.Repr.IsDouble()
}

func (self *ValueNode) RegisterMask() uint64 {
    return self.regs
}

func (self *ValueNode) AddRegister(code uint8) {
    self.regs |= 1 << code
}

func (self *ValueNode) RemoveRegister(code uint8) {
    self.regs &^= 1 << code
}

func (self *ValueNode) ClearRegisters() {
    self.regs = 0
}

func (self *ValueNode) HasRegister() bool {
    return self.regs != 0
}

func (self *ValueNode) NumRegisters() int {
    return bits.OnesCount64(self.regs)
}

func (self *ValueNode) IsLoadable() bool {
    return self.spill.IsStackSlot() || self.spill.IsConstant()
}

func (self *ValueNode) IsSpilled() bool {
    return self.spill.IsStackSlot()
}

// LoadableSlot is the stack slot or constant the value can be reloaded from.
func (self *ValueNode) LoadableSlot() Operand {
    return self.spill
}

// Spill records the stack slot holding this value from its definition on.
func (self *ValueNode) Spill(slot Operand) {
    if self.IsLoadable() {
        panic("regalloc: spilling " + self.Name() + " twice")
    } else if !slot.IsStackSlot() {
        panic("regalloc: spilling " + self.Name() + " into " + slot.String())
    } else {
        self.spill = slot
    }
}

// Allocation is the preferred current location: the first register, else
// the loadable slot.
func (self *ValueNode) Allocation() Operand {
    if self.regs == 0 {
        return self.spill
    } else if self.UseDoubleRegister() {
        return DoubleRegisterOperand(arch.DoubleRegister(bits.TrailingZeros64(self.regs)))
    } else {
        return RegisterOperand(arch.GeneralRegister(bits.TrailingZeros64(self.regs)))
    }
}

// MarkResumeValue marks a value defined on a generator resume path that
// never reaches the loop back edges of the loops it appears to be used in.
func (self *ValueNode) MarkResumeValue() {
    self.resume = true
}

func (self *ValueNode) IsResumeValue() bool {
    return self.resume
}

func (self *ValueNode) String() string {
    var sb strings.Builder
    sb.WriteString(self.Name())
    sb.WriteString(" = ")

    /* constants print their immediate */
    if self.IsConstant() {
        fmt.Fprintf(&sb, "%s(%d)", self.Op, self.Imm)
    } else {
        fmt.Fprintf(&sb, "%s(%s)", self.Op, self.inputString())
    }

    /* representation and result location */
    fmt.Fprintf(&sb, ":%s → %s", self.Repr, self.result)
    if self.IsSpilled() { fmt.Fprintf(&sb, ", spilled %s", self.spill) }
    fmt.Fprintf(&sb, ", live %s", self.live)
    sb.WriteString(self.tempString())
    return sb.String()
}

// Registers returns the registers of class R occupied by v.
func Registers[R arch.Reg](v *ValueNode) arch.RegList[R] {
    return arch.RegList[R](v.regs)
}

// EffectNode is a node without a result.
type EffectNode struct {
    NodeBase
}

func (self *EffectNode) String() string {
    return fmt.Sprintf("%s(%s)%s", self.Op, self.inputString(), self.tempString())
}

// GapMove copies a value between two allocated locations.
type GapMove struct {
    NodeBase
    Value  *ValueNode
    Source Operand
    Target Operand
}

func NewGapMove(v *ValueNode, source Operand, target Operand) *GapMove {
    return &GapMove { NodeBase: NodeBase { Op: "GapMove" }, Value: v, Source: source, Target: target }
}

func (self *GapMove) String() string {
    return fmt.Sprintf("gap %s → %s (%s)", self.Source, self.Target, self.Value.Name())
}

// ConstantGapMove materializes a constant into a location.
type ConstantGapMove struct {
    NodeBase
    Value  *ValueNode
    Target Operand
}

func NewConstantGapMove(v *ValueNode, target Operand) *ConstantGapMove {
    return &ConstantGapMove { NodeBase: NodeBase { Op: "ConstantGapMove" }, Value: v, Target: target }
}

func (self *ConstantGapMove) String() string {
    return fmt.Sprintf("gap %s(%d) → %s (%s)", self.Value.Op, self.Value.Imm, self.Target, self.Value.Name())
}

// Phi selects a value depending on the incoming edge, input i belongs to
// the i-th predecessor of the owning block.
type Phi struct {
    ValueNode
    ExceptionObject bool
    from            []*BasicBlock
}

func (self *Phi) String() string {
    ss := make([]string, 0, len(self.inputs))
    for i := range self.inputs { ss = append(ss, self.inputs[i].String()) }
    name := "Phi"
    if self.ExceptionObject { name = "ExceptionPhi" }
    return fmt.Sprintf("%s = %s(%s):%s → %s, live %s", self.Name(), name, strings.Join(ss, ", "), self.Repr, self.result, self.live)
}
