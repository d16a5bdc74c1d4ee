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
    `github.com/cloudwego/maglev/internal/arch`
)

const (
    _ArenaOperands = 1024
    _ArenaMerges   = 64
    _ArenaStates   = 16
)

// RegisterMerge records a register whose predecessors disagree on its
// content. Operands[i] is where the value arriving through the i-th
// predecessor lives on that edge.
type RegisterMerge struct {
    Node     *ValueNode
    Operands []Operand
}

// RegisterState is the content of one register at a merge point: nil Node
// for a free register, Merge set when predecessors disagree.
type RegisterState struct {
    Node  *ValueNode
    Merge *RegisterMerge
}

// MergePointRegisterState is the register content agreed on by the
// predecessors of a block processed so far.
type MergePointRegisterState struct {
    initialized bool
    General     [arch.NumGeneralRegisters]RegisterState
    Double      [arch.NumDoubleRegisters]RegisterState
}

func (self *MergePointRegisterState) IsInitialized() bool {
    return self.initialized
}

func (self *MergePointRegisterState) MarkInitialized() {
    self.initialized = true
}

// Arena hands out merge point states and their per predecessor tables in
// chunks that live as long as the graph.
type Arena struct {
    ops    []Operand
    merges []RegisterMerge
    states []MergePointRegisterState
}

// Operands returns n zeroed operands.
func (self *Arena) Operands(n int) []Operand {
    if n > cap(self.ops) - len(self.ops) {
        self.ops = make([]Operand, 0, max(n, _ArenaOperands))
    }

    /* carve from the current chunk */
    p := len(self.ops)
    self.ops = self.ops[:p + n]
    return self.ops[p:p + n:p + n]
}

// NewMerge returns a merge record with one operand per predecessor.
func (self *Arena) NewMerge(node *ValueNode, npred int) *RegisterMerge {
    if len(self.merges) == cap(self.merges) {
        self.merges = make([]RegisterMerge, 0, _ArenaMerges)
    }

    /* elements never move once handed out */
    self.merges = append(self.merges, RegisterMerge { Node: node, Operands: self.Operands(npred) })
    return &self.merges[len(self.merges) - 1]
}

func (self *Arena) NewState() *MergePointRegisterState {
    if len(self.states) == cap(self.states) {
        self.states = make([]MergePointRegisterState, 0, _ArenaStates)
    }

    /* elements never move once handed out */
    self.states = append(self.states, MergePointRegisterState{})
    return &self.states[len(self.states) - 1]
}
