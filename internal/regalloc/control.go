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
)

func (self *Allocator) allocateControlNode(c ir.ControlNode, bb *ir.BasicBlock) {
    nb := c.Base()
    self.current = c

    /* check the entry state */
    if !self.general.Blocked().Empty() || !self.double.Blocked().Empty() {
        invariantAt(c, "blocked registers at control node entry")
    }

    /* dispatch by kind */
    switch v := c.(type) {
        case *ir.Jump          : self.allocateJump(c, bb, v.Target)
        case *ir.JumpToInlined : self.allocateJump(c, bb, v.Target)
        case *ir.JumpLoop      : self.allocateJumpLoop(v, bb)
        case *ir.Deopt         : self.allocateDeopt(nb.EagerDeopt)
        case *ir.Abort         : break
        default                : self.allocateConditional(c)
    }

    /* the block is done */
    self.general.ClearBlocked()
    self.double.ClearBlocked()
    self.traceNode(c)

    /* check the state if requested */
    if self.opts.Verify {
        self.verifyRegisterState()
    }
}

func (self *Allocator) allocateJump(c ir.ControlNode, bb *ir.BasicBlock, target *ir.BasicBlock) {
    self.initializeBranchTargetPhis(bb.PredecessorId(), target)
    self.mergeRegisterValues(c, target, bb.PredecessorId())
}

// allocateJumpLoop closes a loop. Values used inside the loop must be
// reachable on the back edge, except resume values whose definition cannot
// reach this back edge at all.
func (self *Allocator) allocateJumpLoop(c *ir.JumpLoop, bb *ir.BasicBlock) {
    for i := range c.UsedNodes {
        v := c.UsedNodes[i].Node()
        if v.HasRegister() || v.IsLoadable() {
            continue
        }

        /* values from a generator resume path that never loops */
        if v.IsResumeValue() && !self.reaches(v.Block(), bb) {
            self.traceResume(v, c)
            continue
        }

        /* keep it on the stack */
        self.spill(v)
    }

    /* phis and registers of the header */
    self.initializeBranchTargetPhis(bb.PredecessorId(), c.Target)
    self.mergeRegisterValues(c, c.Target, bb.PredecessorId())

    /* the back edge is the last use of values not used after the loop */
    for i := range c.UsedNodes {
        in := &c.UsedNodes[i]
        if v := in.Node(); v.HasRegister() || v.IsLoadable() {
            in.SetLocation(v.Allocation())
        }
        self.updateUse(in)
    }
}

// allocateConditional handles Branch, Switch and Return.
func (self *Allocator) allocateConditional(c ir.ControlNode) {
    nb := c.Base()
    self.assignFixedInputs(nb)
    self.assignArbitraryRegisterInputs(nb)
    self.assignAnyInputs(nb)
    self.verifyInputs(nb)
    self.updateInputUses(nb)

    /* targets inherit the final state */
    for _, succ := range ir.Successors(c) {
        if succ.HasState() {
            self.initializeBranchTargetRegisterValues(c, succ)
        } else {
            self.clearDeadFallthroughRegisters(c, succ)
        }
    }
}

// initializeBranchTargetPhis records where each phi input lives at the end
// of the predecessor. All locations are read before any use is consumed,
// the phi moves happen in parallel.
func (self *Allocator) initializeBranchTargetPhis(pred int, target *ir.BasicBlock) {
    for _, p := range target.Phis {
        in := p.Input(pred)
        in.SetLocation(self.location(in.Node()))
    }
    for _, p := range target.Phis {
        self.updateUse(p.Input(pred))
    }
}

// isLiveAtTarget reports whether v is still needed on entry to target when
// leaving through control node c.
func (self *Allocator) isLiveAtTarget(v *ir.ValueNode, c ir.ControlNode, target *ir.BasicBlock) bool {
    if v == nil || v.IsDead() {
        return false
    }

    /* back edges keep what was defined before the loop */
    if target.Control.Base().Id() <= c.Base().Id() {
        return v.Id() < target.FirstId()
    }

    /* live past the hole means live at every forward target */
    if hole := c.NextPostDominatingHole(); hole != nil && v.LiveRange().End >= hole.Base().Id() {
        return true
    }
    return v.LiveRange().End >= target.FirstId()
}

func (self *Allocator) clearDeadFallthroughRegisters(c ir.ControlNode, target *ir.BasicBlock) {
    clearDeadRegisters(self, self.general, c, target)
    clearDeadRegisters(self, self.double, c, target)
}
