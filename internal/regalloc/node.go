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

func (self *Allocator) allocateNode(n ir.Node) {
    nb := n.Base()
    self.current = n

    /* nothing may be left blocked by the previous node */
    if !self.general.Blocked().Empty() || !self.double.Blocked().Empty() {
        invariantAt(n, "blocked registers at node entry: %s %s", self.general.Blocked(), self.double.Blocked())
    }

    /* inputs, then temporaries */
    self.assignFixedInputs(nb)
    self.assignArbitraryRegisterInputs(nb)
    self.assignAnyInputs(nb)
    self.assignTemporaries(nb)
    self.verifyInputs(nb)

    /* calls clobber every register */
    if nb.IsCall() {
        spillAndClearRegisters(self, self.general)
        spillAndClearRegisters(self, self.double)
    }

    /* the result */
    if v, ok := n.(*ir.ValueNode); ok {
        self.allocateNodeResult(v)
    }

    /* consume the uses of this node */
    self.updateInputUses(nb)
    self.allocateDeopt(nb.EagerDeopt)
    self.allocateDeopt(nb.LazyDeopt)

    /* the next node starts unconstrained */
    self.general.ClearBlocked()
    self.double.ClearBlocked()
    self.traceNode(n)

    /* check the state if requested */
    if self.opts.Verify {
        self.verifyRegisterState()
    }
}

func (self *Allocator) assignFixedInputs(nb *ir.NodeBase) {
    ins := nb.Inputs()
    for i := range ins {
        in := &ins[i]
        op := in.Operand()

        /* only the unresolved fixed inputs */
        if !op.IsUnallocated() {
            continue
        }

        /* pin the value to the register */
        switch op.Policy {
            case ir.PolicyFixedRegister       : assignFixedInput(self, self.general, in, op.Register())
            case ir.PolicyFixedDoubleRegister : assignFixedInput(self, self.double, in, op.DoubleRegister())
        }
    }
}

func assignFixedInput[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], in *ir.Input, r R) {
    v := in.Node()
    had := ir.Registers[R](v).Has(r)
    src := a.location(v)

    /* take the register, moving the value in if it is somewhere else */
    loc := forceAllocate(a, fs, r, v, false)
    in.SetLocation(loc)
    if !had {
        a.addMoveBeforeCurrentNode(v, src, loc)
    }
}

func (self *Allocator) assignArbitraryRegisterInputs(nb *ir.NodeBase) {
    ins := nb.Inputs()
    for i := range ins {
        in := &ins[i]
        op := in.Operand()

        /* only the unresolved register inputs */
        if !op.IsUnallocated() || op.Policy != ir.PolicyMustHaveRegister {
            continue
        }

        /* choose the register class */
        if in.Node().UseDoubleRegister() {
            assignRegisterInput(self, self.double, in)
        } else {
            assignRegisterInput(self, self.general, in)
        }
    }
}

func assignRegisterInput[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], in *ir.Input) {
    v := in.Node()
    regs := ir.Registers[R](v)

    /* already in a register, prefer one that is blocked anyway */
    if !regs.Empty() {
        r := regs.First()
        if pinned := regs.Intersect(fs.Blocked()); !pinned.Empty() {
            r = pinned.First()
        }
        fs.Block(r)
        in.SetLocation(fs.Operand(r))
        return
    }

    /* load it into a fresh register */
    src := a.location(v)
    loc := fs.Operand(allocateRegister(a, fs, v))
    in.SetLocation(loc)
    a.addMoveBeforeCurrentNode(v, src, loc)
}

func (self *Allocator) assignAnyInputs(nb *ir.NodeBase) {
    ins := nb.Inputs()
    for i := range ins {
        in := &ins[i]
        op := in.Operand()

        /* only the flexible inputs are left */
        if !op.IsUnallocated() {
            continue
        }

        /* take the value where it is */
        v := in.Node()
        loc := self.location(v)
        in.SetLocation(loc)

        /* keep the register for the duration of the node */
        switch {
            case loc.IsRegister()       : self.general.Block(loc.Register())
            case loc.IsDoubleRegister() : self.double.Block(loc.DoubleRegister())
        }
    }
}

func (self *Allocator) assignTemporaries(nb *ir.NodeBase) {
    for i := 0; i < nb.NumTemps; i++ {
        nb.Temps.Add(allocateTemporary(self, self.general))
    }
    for i := 0; i < nb.NumDTemps; i++ {
        nb.DoubleTemps.Add(allocateTemporary(self, self.double))
    }
}

// allocateTemporary blocks a free register without assigning a value.
func allocateTemporary[R arch.Reg](a *Allocator, fs *RegisterFrameState[R]) R {
    if fs.UnblockedFreeIsEmpty() {
        freeUnblockedRegister(a, fs)
    }
    r := fs.UnblockedFree().First()
    fs.Block(r)
    return r
}

func (self *Allocator) verifyInputs(nb *ir.NodeBase) {
    ins := nb.Inputs()
    for i := range ins {
        if !ins[i].Operand().IsAllocated() {
            invariantAt(self.current, "input %d was not allocated", i)
        }
    }
}

func (self *Allocator) allocateNodeResult(v *ir.ValueNode) {
    op := v.Result()
    if !op.IsUnallocated() {
        invariantAt(v, "result is already allocated")
    }

    /* resolve the result policy */
    switch op.Policy {
        case ir.PolicyFixedSlot: {
            slot := ir.StackSlotOperand(op.Index, v.Repr.IsTagged())
            v.Spill(slot)
            v.SetResult(slot)
            return
        }
        case ir.PolicyFixedRegister: {
            v.SetResult(forceAllocate(self, self.general, op.Register(), v, true))
        }
        case ir.PolicyFixedDoubleRegister: {
            v.SetResult(forceAllocate(self, self.double, op.DoubleRegister(), v, true))
        }
        case ir.PolicyMustHaveRegister: {
            if v.UseDoubleRegister() {
                v.SetResult(self.double.Operand(allocateRegisterAtEnd(self, self.double, v)))
            } else {
                v.SetResult(self.general.Operand(allocateRegisterAtEnd(self, self.general, v)))
            }
        }
        case ir.PolicySameAsInput: {
            loc := v.Input(op.Index).Operand()
            switch {
                case loc.IsRegister()       : v.SetResult(forceAllocate(self, self.general, loc.Register(), v, true))
                case loc.IsDoubleRegister() : v.SetResult(forceAllocate(self, self.double, loc.DoubleRegister(), v, true))
                default                     : invariantAt(v, "result reuses input %d at %s", op.Index, loc)
            }
        }
        default: {
            invariantAt(v, "unexpected result policy %s", op.Policy)
        }
    }

    /* results nobody reads give their register back right away */
    if !v.HasValidLiveRange() {
        self.freeRegistersUsedBy(v)
    }
}

func (self *Allocator) updateInputUses(nb *ir.NodeBase) {
    ins := nb.Inputs()
    for i := range ins {
        self.updateUse(&ins[i])
    }
}

// allocateDeopt makes every value of a deopt snapshot loadable and records
// the loadable location.
func (self *Allocator) allocateDeopt(di *ir.DeoptInfo) {
    if di == nil {
        return
    }

    /* resolve every location */
    for i := range di.Locations {
        in := &di.Locations[i]
        v := in.Node()

        /* the value must survive in its slot */
        if !v.IsLoadable() {
            if !v.HasRegister() {
                invariantAt(self.current, "deopt value %s is neither in a register nor loadable", v.Name())
            }
            self.spill(v)
        }

        /* record the location */
        in.SetLocation(v.LoadableSlot())
        self.updateUse(in)
    }
}

// spillAndClearRegisters empties the register file before a call. Values
// whose last use is the call itself do not need a stack slot.
func spillAndClearRegisters[R arch.Reg](a *Allocator, fs *RegisterFrameState[R]) {
    for used := fs.Used(); !used.Empty(); used = fs.Used() {
        v := fs.GetValue(used.First())
        if !a.diesHere(v) {
            a.spill(v)
        }
        fs.FreeRegistersUsedBy(v)
    }
}

// forceAllocate puts v into r. The previous occupant is dropped, which
// saves it elsewhere if it is still needed. Results pass atEnd, so an
// occupant dying at the current node is discarded instead.
func forceAllocate[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], r R, v *ir.ValueNode, atEnd bool) ir.Operand {
    if fs.Free().Has(r) {
        fs.RemoveFromFree(r)
    } else if fs.GetValue(r) == v {
        fs.Block(r)
        return fs.Operand(r)
    } else if fs.IsBlocked(r) && !atEnd {
        invariantAt(a.current, "%s is blocked by %s", r, fs.GetValue(r).Name())
    } else {
        dropRegisterValue(a, fs, r, atEnd)
    }

    /* assign the register */
    fs.SetValue(r, v)
    return fs.Operand(r)
}

// dropRegisterValue detaches the occupant of r. If the occupant is not in
// another register and cannot be reloaded, it is moved to a free register
// or spilled. r is left neither free nor assigned.
func dropRegisterValue[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], r R, atEnd bool) {
    v := fs.GetValue(r)
    v.RemoveRegister(uint8(r))
    fs.values[r] = nil

    /* still reachable from somewhere else */
    if v.HasRegister() || v.IsLoadable() || (atEnd && a.diesHere(v)) {
        return
    }

    /* move to another register */
    if !fs.UnblockedFreeIsEmpty() {
        target := fs.UnblockedFree().First()
        fs.RemoveFromFree(target)
        fs.SetValueWithoutBlocking(target, v)
        a.addMoveBeforeCurrentNode(v, fs.Operand(r), fs.Operand(target))
        return
    }

    /* no room, keep it on the stack */
    a.spill(v)
}

// pickRegisterToFree chooses among the unblocked used registers: one whose
// value also lives in another register if any, else the one whose value is
// used furthest away.
func pickRegisterToFree[R arch.Reg](fs *RegisterFrameState[R]) (R, bool) {
    var best R
    var found bool
    var furthest ir.NodeId

    /* scan the candidates */
    for _, r := range fs.Used().Diff(fs.Blocked()).Slice() {
        v := fs.GetValue(r)
        if v.NumRegisters() > 1 {
            return r, true
        }
        if use := v.NextUse(); !found || use > furthest {
            best, found, furthest = r, true, use
        }
    }
    return best, found
}

func freeUnblockedRegister[R arch.Reg](a *Allocator, fs *RegisterFrameState[R]) R {
    r, ok := pickRegisterToFree(fs)
    if !ok {
        invariantAt(a.current, "no register can be freed: blocked %s, free %s", fs.Blocked(), fs.Free())
    }
    dropRegisterValue(a, fs, r, false)
    fs.AddToFree(r)
    evictionCount.Inc()
    return r
}

// allocateRegister assigns an unblocked register to an input, freeing one
// if needed.
func allocateRegister[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], v *ir.ValueNode) R {
    if fs.UnblockedFreeIsEmpty() {
        freeUnblockedRegister(a, fs)
    }
    return fs.AllocateRegister(v)
}

// allocateRegisterAtEnd assigns a register to a result. The register of an
// input whose last use is the current node may be taken even though it is
// blocked, the node reads its inputs before writing the result.
func allocateRegisterAtEnd[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], v *ir.ValueNode) R {
    if fs.UnblockedFreeIsEmpty() {
        ensureFreeRegisterAtEnd(a, fs)
    }
    return fs.AllocateRegister(v)
}

func ensureFreeRegisterAtEnd[R arch.Reg](a *Allocator, fs *RegisterFrameState[R]) {
    for _, r := range fs.Used().Slice() {
        if a.diesHere(fs.GetValue(r)) {
            fs.Unblock(r)
            dropRegisterValue(a, fs, r, true)
            fs.AddToFree(r)
            return
        }
    }

    /* fall back to the regular heuristics */
    r, ok := pickRegisterToFree(fs)
    if !ok {
        invariantAt(a.current, "no register available for the result: blocked %s, free %s", fs.Blocked(), fs.Free())
    }

    /* evict the chosen value */
    dropRegisterValue(a, fs, r, true)
    fs.AddToFree(r)
    evictionCount.Inc()
}
