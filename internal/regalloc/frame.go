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
    `github.com/cloudwego/maglev/internal/arch`
    `github.com/cloudwego/maglev/internal/ir`
)

// RegisterFrameState tracks one register class: which registers are free,
// which are blocked for the node being allocated, and which value occupies
// each used register. A blocked register may still be free, this is how
// temporaries and registers of dead inputs are kept away from the result.
type RegisterFrameState[R arch.Reg] struct {
    free        arch.RegList[R]
    blocked     arch.RegList[R]
    allocatable arch.RegList[R]
    double      bool
    values      [64]*ir.ValueNode
}

func newGeneralFrameState(regs arch.RegList[arch.GeneralRegister]) *RegisterFrameState[arch.GeneralRegister] {
    return &RegisterFrameState[arch.GeneralRegister] { free: regs, allocatable: regs }
}

func newDoubleFrameState(regs arch.RegList[arch.DoubleRegister]) *RegisterFrameState[arch.DoubleRegister] {
    return &RegisterFrameState[arch.DoubleRegister] { free: regs, allocatable: regs, double: true }
}

func (self *RegisterFrameState[R]) Allocatable() arch.RegList[R] {
    return self.allocatable
}

func (self *RegisterFrameState[R]) Free() arch.RegList[R] {
    return self.free
}

func (self *RegisterFrameState[R]) Used() arch.RegList[R] {
    return self.allocatable.Diff(self.free)
}

func (self *RegisterFrameState[R]) Blocked() arch.RegList[R] {
    return self.blocked
}

func (self *RegisterFrameState[R]) UnblockedFree() arch.RegList[R] {
    return self.free.Diff(self.blocked)
}

func (self *RegisterFrameState[R]) UnblockedFreeIsEmpty() bool {
    return self.UnblockedFree().Empty()
}

func (self *RegisterFrameState[R]) IsBlocked(r R) bool {
    return self.blocked.Has(r)
}

func (self *RegisterFrameState[R]) Block(r R) {
    self.blocked.Add(r)
}

func (self *RegisterFrameState[R]) Unblock(r R) {
    self.blocked.Remove(r)
}

func (self *RegisterFrameState[R]) ClearBlocked() {
    self.blocked = 0
}

func (self *RegisterFrameState[R]) RemoveFromFree(r R) {
    self.free.Remove(r)
}

// AddToFree returns r to the free list, the previous occupant must have
// been detached already.
func (self *RegisterFrameState[R]) AddToFree(r R) {
    self.free.Add(r)
    self.values[r] = nil
}

// GetValue returns the occupant of a used register.
func (self *RegisterFrameState[R]) GetValue(r R) *ir.ValueNode {
    if self.free.Has(r) {
        invariant("register %s is free", r)
    }
    return self.values[r]
}

// SetValue makes v the occupant of r and blocks r.
func (self *RegisterFrameState[R]) SetValue(r R, v *ir.ValueNode) {
    self.Block(r)
    self.SetValueWithoutBlocking(r, v)
}

func (self *RegisterFrameState[R]) SetValueWithoutBlocking(r R, v *ir.ValueNode) {
    if self.free.Has(r) {
        invariant("register %s must be taken from the free list before use", r)
    }
    self.values[r] = v
    v.AddRegister(uint8(r))
}

// FreeRegistersUsedBy detaches v from every register it occupies.
func (self *RegisterFrameState[R]) FreeRegistersUsedBy(v *ir.ValueNode) {
    regs := ir.Registers[R](v)
    for _, r := range regs.Slice() {
        self.values[r] = nil
    }
    self.free = self.free.Union(regs)
    v.ClearRegisters()
}

// AllocateRegister assigns the first unblocked free register to v and
// blocks it.
func (self *RegisterFrameState[R]) AllocateRegister(v *ir.ValueNode) R {
    if self.UnblockedFreeIsEmpty() {
        invariant("no unblocked free register for %s", v.Name())
    }
    r := self.UnblockedFree().First()
    self.RemoveFromFree(r)
    self.SetValue(r, v)
    return r
}

// Operand returns the location operand of r.
func (self *RegisterFrameState[R]) Operand(r R) ir.Operand {
    if self.double {
        return ir.DoubleRegisterOperand(arch.DoubleRegister(r))
    } else {
        return ir.RegisterOperand(arch.GeneralRegister(r))
    }
}

// Register extracts the register of this class from a location operand.
func (self *RegisterFrameState[R]) Register(op ir.Operand) R {
    if self.double {
        return R(op.DoubleRegister())
    } else {
        return R(op.Register())
    }
}

// States selects the merge point entries of this register class.
func (self *RegisterFrameState[R]) States(ms *ir.MergePointRegisterState) []ir.RegisterState {
    if self.double {
        return ms.Double[:]
    } else {
        return ms.General[:]
    }
}
