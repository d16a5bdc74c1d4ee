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

// initializeBranchTargetRegisterValues snapshots the registers holding
// values live at target into its merge point state.
func (self *Allocator) initializeBranchTargetRegisterValues(c ir.ControlNode, target *ir.BasicBlock) {
    st := target.EnsureState()
    if st.IsInitialized() {
        invariantAt(c, "bb_%d is entered twice by conditional edges", target.Id)
    }

    /* copy both register classes */
    snapshotRegisters(self, self.general, c, target, st)
    snapshotRegisters(self, self.double, c, target, st)
    st.MarkInitialized()
}

func snapshotRegisters[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], c ir.ControlNode, target *ir.BasicBlock, st *ir.MergePointRegisterState) {
    states := fs.States(st)
    for _, r := range fs.Allocatable().Slice() {
        var v *ir.ValueNode
        if !fs.Free().Has(r) {
            if v = fs.GetValue(r); !a.isLiveAtTarget(v, c, target) {
                v = nil
            }
        }
        states[r] = ir.RegisterState { Node: v }
    }
}

// mergeRegisterValues reconciles the registers at the end of a predecessor
// with the state the earlier predecessors of target agreed on. Registers
// that disagree get a merge record telling where the value arrives from on
// each edge.
func (self *Allocator) mergeRegisterValues(c ir.ControlNode, target *ir.BasicBlock, pred int) {
    st := target.EnsureState()
    if !st.IsInitialized() {
        self.initializeBranchTargetRegisterValues(c, target)
        return
    }

    /* merge both register classes */
    mergeRegisters(self, self.general, c, target, pred, st)
    mergeRegisters(self, self.double, c, target, pred, st)
    self.traceMerge(target, pred)
}

func mergeRegisters[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], c ir.ControlNode, target *ir.BasicBlock, pred int, st *ir.MergePointRegisterState) {
    states := fs.States(st)
    for _, r := range fs.Allocatable().Slice() {
        mergeRegister(a, fs, c, target, pred, r, &states[r])
    }
}

func mergeRegister[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], c ir.ControlNode, target *ir.BasicBlock, pred int, r R, rs *ir.RegisterState) {
    var incoming *ir.ValueNode
    reg := fs.Operand(r)
    node, merge := rs.Node, rs.Merge

    /* the value this edge brings in */
    if !fs.Free().Has(r) {
        if incoming = fs.GetValue(r); !a.isLiveAtTarget(incoming, c, target) {
            incoming = nil
        }
    }

    /* phis of a loop header receive their values through phi moves */
    if node != nil && node.IsPhi() && node.Block() == target {
        return
    }

    /* both sides agree */
    if incoming == node {
        if merge != nil {
            merge.Operands[pred] = reg
        }
        return
    }

    /* nothing new is loaded at loop headers */
    if node == nil {
        if _, ok := c.(*ir.JumpLoop); ok {
            return
        }
    } else if !node.IsLoadable() && !node.HasRegister() {
        *rs = ir.RegisterState{}
        return
    }

    /* existing merge, record where the node is on this edge */
    if merge != nil {
        merge.Operands[pred] = node.Allocation()
        return
    }

    /* a free register meeting a value that lives elsewhere in the state */
    if node == nil && !incoming.IsLoadable() {
        return
    }

    /* create the merge record */
    npred := len(target.Pred)
    mv := node
    if mv == nil {
        mv = incoming
    }

    /* earlier edges agreed on the register or had the incoming value on the stack */
    merge = a.graph.Arena().NewMerge(mv, npred)
    sofar := reg
    if node == nil {
        sofar = incoming.LoadableSlot()
    }
    for i := range merge.Operands {
        merge.Operands[i] = sofar
    }

    /* this edge */
    if node == nil {
        merge.Operands[pred] = reg
    } else {
        merge.Operands[pred] = node.Allocation()
    }

    /* update the state */
    *rs = ir.RegisterState { Node: mv, Merge: merge }
    mergeCount.Inc()
}

// clearDeadRegisters frees the registers of values not live at a
// fallthrough target, which keeps the frame state without a merge point.
func clearDeadRegisters[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], c ir.ControlNode, target *ir.BasicBlock) {
    for _, r := range fs.Used().Slice() {
        if fs.Free().Has(r) {
            continue
        }
        if v := fs.GetValue(r); !a.isLiveAtTarget(v, c, target) {
            fs.FreeRegistersUsedBy(v)
        }
    }
}
