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

    `golang.org/x/exp/slices`
)

type BasicBlock struct {
    Id               int
    Phis             []*Phi
    Nodes            []Node
    Control          ControlNode
    Pred             []*BasicBlock
    ExceptionHandler bool
    predId           int
    firstId          NodeId
    loop             bool
    merge            bool
    state            *MergePointRegisterState
    graph            *Graph
}

// PredecessorId is the index of this block in the predecessor list of its
// unconditional successor.
func (self *BasicBlock) PredecessorId() int {
    return self.predId
}

// FirstId is the id of the first phi or node of this block, or of its
// control node if the block is otherwise empty. Gap moves inserted by the
// allocator do not change it.
func (self *BasicBlock) FirstId() NodeId {
    return self.firstId
}

func (self *BasicBlock) IsLoopHeader() bool {
    return self.loop
}

func (self *BasicBlock) HasPhi() bool {
    return len(self.Phis) != 0
}

// HasState reports whether predecessors hand over their register state
// through a MergePointRegisterState instead of falling through.
func (self *BasicBlock) HasState() bool {
    return self.merge
}

// State returns the merge point state, nil until a predecessor created it.
func (self *BasicBlock) State() *MergePointRegisterState {
    return self.state
}

// EnsureState returns the merge point state, creating it on first request.
func (self *BasicBlock) EnsureState() *MergePointRegisterState {
    if !self.merge {
        panic(fmt.Sprintf("regalloc: bb_%d does not take a merge point state", self.Id))
    }
    if self.state == nil {
        self.state = self.graph.arena.NewState()
    }
    return self.state
}

func (self *BasicBlock) Successors() []*BasicBlock {
    return Successors(self.Control)
}

// InsertNode inserts n before the i-th node.
func (self *BasicBlock) InsertNode(i int, n Node) {
    self.Nodes = slices.Insert(self.Nodes, i, n)
}

func (self *BasicBlock) AppendNode(n Node) {
    self.Nodes = append(self.Nodes, n)
}

// RemovePhi drops the i-th phi.
func (self *BasicBlock) RemovePhi(i int) {
    self.Phis = slices.Delete(self.Phis, i, i + 1)
}

func (self *BasicBlock) String() string {
    var sb strings.Builder
    var attrs []string

    /* block attributes */
    if self.loop { attrs = append(attrs, "loop") }
    if self.ExceptionHandler { attrs = append(attrs, "exception handler") }
    if len(self.Pred) != 0 {
        ps := make([]string, 0, len(self.Pred))
        for _, p := range self.Pred { ps = append(ps, fmt.Sprintf("bb_%d", p.Id)) }
        attrs = append(attrs, "pred " + strings.Join(ps, ", "))
    }

    /* block header */
    if fmt.Fprintf(&sb, "bb_%d:", self.Id); len(attrs) != 0 {
        fmt.Fprintf(&sb, " ; %s", strings.Join(attrs, "; "))
    }

    /* phis, nodes and the control node */
    for _, p := range self.Phis { fmt.Fprintf(&sb, "\n    %s", p) }
    for _, v := range self.Nodes { fmt.Fprintf(&sb, "\n    %s", v) }
    if self.Control != nil { fmt.Fprintf(&sb, "\n    n%d: %s", self.Control.Base().Id(), self.Control) }
    return sb.String()
}
