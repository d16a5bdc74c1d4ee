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
)

// ControlNode terminates a basic block. The set of control nodes is closed:
// Jump, JumpToInlined and JumpLoop are unconditional, Branch and Switch are
// conditional, Return, Deopt and Abort are terminal.
type ControlNode interface {
    Node
    NextPostDominatingHole() ControlNode
    SetNextPostDominatingHole(hole ControlNode)
    controlnode()
}

type ControlBase struct {
    NodeBase
    hole ControlNode
}

func (*ControlBase) controlnode() {}

// NextPostDominatingHole is the nearest control node at or after this one
// that every path from here passes through before resuming linear layout
// order, a terminal node, or a loop back edge.
func (self *ControlBase) NextPostDominatingHole() ControlNode {
    return self.hole
}

func (self *ControlBase) SetNextPostDominatingHole(hole ControlNode) {
    self.hole = hole
}

func (self *ControlBase) holeString() string {
    if self.hole == nil {
        return ""
    } else {
        return fmt.Sprintf(" ; hole n%d", self.hole.Base().Id())
    }
}

type Jump struct {
    ControlBase
    Target *BasicBlock
}

func (self *Jump) String() string {
    return fmt.Sprintf("Jump bb_%d%s", self.Target.Id, self.holeString())
}

// JumpToInlined enters the body of an inlined function.
type JumpToInlined struct {
    ControlBase
    Target *BasicBlock
}

func (self *JumpToInlined) String() string {
    return fmt.Sprintf("JumpToInlined bb_%d%s", self.Target.Id, self.holeString())
}

// JumpLoop is the back edge of a loop. UsedNodes are the values defined
// before the loop and used inside it, kept alive up to this node.
type JumpLoop struct {
    ControlBase
    Target    *BasicBlock
    UsedNodes []Input
}

func (self *JumpLoop) String() string {
    ss := make([]string, 0, len(self.UsedNodes))
    for i := range self.UsedNodes { ss = append(ss, self.UsedNodes[i].String()) }
    return fmt.Sprintf("JumpLoop bb_%d [%s]", self.Target.Id, strings.Join(ss, ", "))
}

// Branch takes IfTrue when input 0 is true.
type Branch struct {
    ControlBase
    IfTrue  *BasicBlock
    IfFalse *BasicBlock
}

func (self *Branch) String() string {
    return fmt.Sprintf("Branch(%s) bb_%d, bb_%d%s", self.inputString(), self.IfTrue.Id, self.IfFalse.Id, self.holeString())
}

// Switch dispatches on input 0, with an optional fallthrough target.
type Switch struct {
    ControlBase
    Targets     []*BasicBlock
    Fallthrough *BasicBlock
}

func (self *Switch) String() string {
    ss := make([]string, 0, len(self.Targets))
    for _, bb := range self.Targets { ss = append(ss, fmt.Sprintf("bb_%d", bb.Id)) }
    if self.Fallthrough != nil { ss = append(ss, fmt.Sprintf("default bb_%d", self.Fallthrough.Id)) }
    return fmt.Sprintf("Switch(%s) %s%s", self.inputString(), strings.Join(ss, ", "), self.holeString())
}

type Return struct {
    ControlBase
}

func (self *Return) String() string {
    return fmt.Sprintf("Return(%s)", self.inputString())
}

type Deopt struct {
    ControlBase
}

func (self *Deopt) String() string {
    return "Deopt"
}

type Abort struct {
    ControlBase
    Reason string
}

func (self *Abort) String() string {
    return fmt.Sprintf("Abort(%q)", self.Reason)
}

// Successors returns the successor blocks of a control node, the
// fallthrough of a switch goes last.
func Successors(c ControlNode) []*BasicBlock {
    switch v := c.(type) {
        case *Jump          : return []*BasicBlock { v.Target }
        case *JumpToInlined : return []*BasicBlock { v.Target }
        case *JumpLoop      : return []*BasicBlock { v.Target }
        case *Branch        : return []*BasicBlock { v.IfTrue, v.IfFalse }
        case *Switch        : return switchTargets(v)
        case *Return        : return nil
        case *Deopt         : return nil
        case *Abort         : return nil
        default             : panic(fmt.Sprintf("regalloc: unknown control node %T", c))
    }
}

func switchTargets(sw *Switch) []*BasicBlock {
    ret := make([]*BasicBlock, 0, len(sw.Targets) + 1)
    ret = append(ret, sw.Targets...)
    if sw.Fallthrough != nil { ret = append(ret, sw.Fallthrough) }
    return ret
}

// UnconditionalTarget returns the single target of an unconditional control node.
func UnconditionalTarget(c ControlNode) (*BasicBlock, bool) {
    switch v := c.(type) {
        case *Jump          : return v.Target, true
        case *JumpToInlined : return v.Target, true
        case *JumpLoop      : return v.Target, true
        default             : return nil, false
    }
}

func IsConditional(c ControlNode) bool {
    switch c.(type) {
        case *Branch, *Switch : return true
        default               : return false
    }
}

func IsTerminal(c ControlNode) bool {
    switch c.(type) {
        case *Return, *Deopt, *Abort : return true
        default                      : return false
    }
}

// replaceSuccessorAt redirects the idx-th edge of a conditional control
// node, indexed the same way as Successors.
func replaceSuccessorAt(c ControlNode, idx int, bb *BasicBlock) {
    switch v := c.(type) {
        case *Branch: {
            if idx == 0 {
                v.IfTrue = bb
            } else {
                v.IfFalse = bb
            }
        }
        case *Switch: {
            if idx < len(v.Targets) {
                v.Targets[idx] = bb
            } else {
                v.Fallthrough = bb
            }
        }
        default: {
            panic(fmt.Sprintf("regalloc: cannot replace successor of %T", c))
        }
    }
}
