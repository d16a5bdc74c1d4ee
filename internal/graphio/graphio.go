/*
 * Copyright 2022 CloudWeGo Authors
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


// Package graphio reads graphs described in JSON.
//
// A graph lists its constants and its blocks in layout order. Values are
// referred to by name, blocks by label:
//
//	{
//	  "constants": [{"name": "one", "repr": "Int32", "imm": 1}],
//	  "blocks": [{
//	    "label": "entry",
//	    "nodes": [
//	      {"name": "x", "op": "Load", "repr": "Int32", "result": "reg"},
//	      {"name": "y", "op": "Int32Add", "repr": "Int32", "result": "reg",
//	       "inputs": [{"value": "x", "policy": "reg"}, {"value": "one"}]}
//	    ],
//	    "control": {"op": "Return", "inputs": [{"value": "y"}]}
//	  }]
//	}
//
// Input policies are "reg", "any", "slot" or a register name such as "rdi"
// or "xmm1". Result policies are "reg", a register name, "same:N" for the
// register of input N, or "slot:N" for a fixed (negative) frame slot.
package graphio

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/maglev/internal/arch"
	"github.com/cloudwego/maglev/internal/ir"
	"github.com/segmentio/encoding/json"
)

type Graph struct {
	Constants []Constant `json:"constants"`
	Blocks    []Block    `json:"blocks"`
}

type Constant struct {
	Name string `json:"name"`
	Repr string `json:"repr"`
	Imm  int64  `json:"imm"`
}

type Block struct {
	Label            string   `json:"label"`
	ExceptionHandler bool     `json:"exception_handler,omitempty"`
	Phis             []Phi    `json:"phis,omitempty"`
	Nodes            []Node   `json:"nodes,omitempty"`
	Control          *Control `json:"control"`
}

type Phi struct {
	Name      string     `json:"name"`
	Repr      string     `json:"repr"`
	Exception bool       `json:"exception,omitempty"`
	Incoming  []Incoming `json:"incoming,omitempty"`
}

type Incoming struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

type Node struct {
	Name        string `json:"name,omitempty"`
	Op          string `json:"op"`
	Repr        string `json:"repr,omitempty"`
	Result      string `json:"result,omitempty"`
	Inputs      []Use  `json:"inputs,omitempty"`
	Call        bool   `json:"call,omitempty"`
	Temps       int    `json:"temps,omitempty"`
	DoubleTemps int    `json:"double_temps,omitempty"`
	Eager       *Frame `json:"eager,omitempty"`
	Lazy        *Frame `json:"lazy,omitempty"`
	Resume      bool   `json:"resume,omitempty"`
}

type Use struct {
	Value  string `json:"value"`
	Policy string `json:"policy,omitempty"`
}

// Frame is a deopt frame, an empty string marks an optimized out value.
type Frame struct {
	Values []string `json:"values"`
	Parent *Frame   `json:"parent,omitempty"`
}

type Control struct {
	Op          string   `json:"op"`
	Inputs      []Use    `json:"inputs,omitempty"`
	Targets     []string `json:"targets,omitempty"`
	Fallthrough string   `json:"fallthrough,omitempty"`
	Eager       *Frame   `json:"eager,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// Decode reads a JSON graph description, rejecting unknown fields.
func Decode(r io.Reader) (*Graph, error) {
	ret := new(Graph)
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(ret); err != nil {
		return nil, fmt.Errorf("graphio: %w", err)
	} else {
		return ret, nil
	}
}

// Load decodes and builds the graph in file fn.
func Load(fn string) (*ir.Graph, error) {
	fp, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	/* decode the description */
	defer fp.Close()
	desc, err := Decode(fp)
	if err != nil {
		return nil, err
	}
	return desc.Build()
}

type _Builder struct {
	b      *ir.Builder
	blocks map[string]*ir.BasicBlock
	values map[string]*ir.ValueNode
	phis   map[*ir.Phi]Phi
}

// Build constructs the graph, splits its critical edges and verifies it.
func (self *Graph) Build() (g *ir.Graph, err error) {
	b := &_Builder{
		b:      ir.NewBuilder(),
		blocks: make(map[string]*ir.BasicBlock),
		values: make(map[string]*ir.ValueNode),
		phis:   make(map[*ir.Phi]Phi),
	}

	/* the builder panics on misuse */
	defer func() {
		if v := recover(); v != nil {
			g, err = nil, fmt.Errorf("graphio: %v", v)
		}
	}()

	/* every step may fail */
	if err = b.build(self); err != nil {
		return nil, err
	}
	return b.b.Finish()
}

func (self *_Builder) build(desc *Graph) error {
	for _, c := range desc.Constants {
		repr, err := parseRepr(c.Repr)
		if err != nil {
			return err
		}
		if err = self.define(c.Name, self.b.Constant(repr, c.Imm)); err != nil {
			return err
		}
	}

	/* blocks are created up front, edges may point forward */
	for _, bd := range desc.Blocks {
		if _, ok := self.blocks[bd.Label]; ok {
			return fmt.Errorf("graphio: duplicated block label %q", bd.Label)
		}
		if bd.ExceptionHandler {
			self.blocks[bd.Label] = self.b.NewExceptionHandler()
		} else {
			self.blocks[bd.Label] = self.b.NewBlock()
		}
	}

	/* fill the blocks in layout order */
	for _, bd := range desc.Blocks {
		if err := self.block(bd); err != nil {
			return fmt.Errorf("graphio: block %q: %w", bd.Label, err)
		}
	}

	/* phi inputs may come from back edges, resolve them last */
	for p, pd := range self.phis {
		for _, in := range pd.Incoming {
			from, err := self.label(in.From)
			if err != nil {
				return err
			}
			v, err := self.value(in.Value)
			if err != nil {
				return err
			}
			p.AddIncoming(from, v)
		}
	}
	return nil
}

func (self *_Builder) define(name string, v *ir.ValueNode) error {
	if name == "" {
		return nil
	} else if _, ok := self.values[name]; ok {
		return fmt.Errorf("graphio: duplicated value name %q", name)
	} else {
		self.values[name] = v
		return nil
	}
}

func (self *_Builder) value(name string) (*ir.ValueNode, error) {
	if v, ok := self.values[name]; !ok {
		return nil, fmt.Errorf("graphio: undefined value %q", name)
	} else {
		return v, nil
	}
}

func (self *_Builder) label(name string) (*ir.BasicBlock, error) {
	if bb, ok := self.blocks[name]; !ok {
		return nil, fmt.Errorf("graphio: undefined block %q", name)
	} else {
		return bb, nil
	}
}

func (self *_Builder) block(bd Block) error {
	bb := self.blocks[bd.Label]
	self.b.SetBlock(bb)

	/* phis, inputs are added once every value is known */
	for _, pd := range bd.Phis {
		var p *ir.Phi
		if pd.Exception {
			p = self.b.ExceptionPhi(bb)
		} else if repr, err := parseRepr(pd.Repr); err != nil {
			return err
		} else {
			p = self.b.Phi(bb, repr)
		}
		if err := self.define(pd.Name, &p.ValueNode); err != nil {
			return err
		}
		self.phis[p] = pd
	}

	/* nodes */
	for _, nd := range bd.Nodes {
		if err := self.node(nd); err != nil {
			return err
		}
	}

	/* the control node */
	if bd.Control == nil {
		return fmt.Errorf("missing control node")
	} else {
		return self.control(bd.Control)
	}
}

func (self *_Builder) node(nd Node) error {
	var err error
	ins := ir.Instr{
		Op:          nd.Op,
		Call:        nd.Call,
		Temps:       nd.Temps,
		DoubleTemps: nd.DoubleTemps,
	}

	/* inputs and deopt frames */
	if ins.Inputs, err = self.uses(nd.Inputs); err != nil {
		return err
	}
	if ins.Eager, err = self.frame(nd.Eager); err != nil {
		return err
	}
	if ins.Lazy, err = self.frame(nd.Lazy); err != nil {
		return err
	}

	/* effect nodes have no result */
	if nd.Result == "" {
		self.b.Effect(ins)
		return nil
	}

	/* value nodes */
	if ins.Repr, err = parseRepr(nd.Repr); err != nil {
		return err
	}
	if ins.Result, err = parseResult(nd.Result); err != nil {
		return fmt.Errorf("%s: %w", nd.Op, err)
	}

	/* add the value */
	v := self.b.Value(ins)
	if nd.Resume {
		v.MarkResumeValue()
	}
	return self.define(nd.Name, v)
}

func (self *_Builder) uses(uds []Use) ([]ir.Use, error) {
	ret := make([]ir.Use, 0, len(uds))
	for _, ud := range uds {
		v, err := self.value(ud.Value)
		if err != nil {
			return nil, err
		}
		u, err := parseUse(v, ud.Policy)
		if err != nil {
			return nil, err
		}
		ret = append(ret, u)
	}
	return ret, nil
}

func (self *_Builder) frame(fd *Frame) (*ir.DeoptFrame, error) {
	if fd == nil {
		return nil, nil
	}

	/* resolve the values of this frame */
	ret := new(ir.DeoptFrame)
	for _, name := range fd.Values {
		if name == "" {
			ret.Values = append(ret.Values, nil)
		} else if v, err := self.value(name); err != nil {
			return nil, err
		} else {
			ret.Values = append(ret.Values, v)
		}
	}

	/* and the outer frames */
	var err error
	ret.Parent, err = self.frame(fd.Parent)
	return ret, err
}

func (self *_Builder) targets(cd *Control, n int) ([]*ir.BasicBlock, error) {
	if len(cd.Targets) != n && n >= 0 {
		return nil, fmt.Errorf("%s expects %d target(s), got %d", cd.Op, n, len(cd.Targets))
	}

	/* resolve the labels */
	ret := make([]*ir.BasicBlock, 0, len(cd.Targets))
	for _, name := range cd.Targets {
		bb, err := self.label(name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, bb)
	}
	return ret, nil
}

func (self *_Builder) input(cd *Control) (ir.Use, error) {
	if len(cd.Inputs) != 1 {
		return ir.Use{}, fmt.Errorf("%s expects 1 input, got %d", cd.Op, len(cd.Inputs))
	} else if us, err := self.uses(cd.Inputs); err != nil {
		return ir.Use{}, err
	} else {
		return us[0], nil
	}
}

func (self *_Builder) control(cd *Control) error {
	switch cd.Op {
	case "Jump", "JumpToInlined", "JumpLoop":
		ts, err := self.targets(cd, 1)
		if err != nil {
			return err
		}
		switch cd.Op {
		case "Jump":
			self.b.Jump(ts[0])
		case "JumpToInlined":
			self.b.JumpToInlined(ts[0])
		default:
			self.b.JumpLoop(ts[0])
		}
		return nil

	case "Branch":
		ts, err := self.targets(cd, 2)
		if err != nil {
			return err
		}
		cond, err := self.input(cd)
		if err != nil {
			return err
		}
		self.b.Branch(cond, ts[0], ts[1])
		return nil

	case "Switch":
		ts, err := self.targets(cd, -1)
		if err != nil {
			return err
		}
		index, err := self.input(cd)
		if err != nil {
			return err
		}
		var otherwise *ir.BasicBlock
		if cd.Fallthrough != "" {
			if otherwise, err = self.label(cd.Fallthrough); err != nil {
				return err
			}
		}
		self.b.Switch(index, ts, otherwise)
		return nil

	case "Return":
		if len(cd.Inputs) != 1 {
			return fmt.Errorf("Return expects 1 input, got %d", len(cd.Inputs))
		}
		v, err := self.value(cd.Inputs[0].Value)
		if err != nil {
			return err
		}
		self.b.Return(v)
		return nil

	case "Deopt":
		fp, err := self.frame(cd.Eager)
		if err != nil {
			return err
		} else if fp == nil {
			return fmt.Errorf("Deopt without a frame")
		}
		self.b.Deopt(fp)
		return nil

	case "Abort":
		self.b.Abort(cd.Reason)
		return nil

	default:
		return fmt.Errorf("unknown control node %q", cd.Op)
	}
}

func parseRepr(s string) (ir.Representation, error) {
	switch s {
	case "", "Tagged":
		return ir.Tagged, nil
	case "Int32":
		return ir.Int32, nil
	case "Uint32":
		return ir.Uint32, nil
	case "Word64":
		return ir.Word64, nil
	case "Float64":
		return ir.Float64, nil
	default:
		return 0, fmt.Errorf("graphio: unknown representation %q", s)
	}
}

func parseUse(v *ir.ValueNode, policy string) (ir.Use, error) {
	switch policy {
	case "", "any":
		return ir.Any(v), nil
	case "reg":
		return ir.Reg(v), nil
	case "slot":
		return ir.RegOrSlot(v), nil
	}

	/* fixed registers */
	if r, ok := arch.ParseRegister(policy); ok {
		return ir.Fixed(v, r), nil
	} else if r, ok := arch.ParseDoubleRegister(policy); ok {
		return ir.FixedDouble(v, r), nil
	} else {
		return ir.Use{}, fmt.Errorf("graphio: unknown input policy %q", policy)
	}
}

func parseResult(s string) (ir.Operand, error) {
	if s == "reg" {
		return ir.Unallocated(ir.PolicyMustHaveRegister), nil
	}

	/* same:N and slot:N */
	if i := strings.IndexByte(s, ':'); i >= 0 {
		n, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return ir.Operand{}, fmt.Errorf("graphio: invalid result policy %q", s)
		}
		switch s[:i] {
		case "same":
			return ir.SameAsInputPolicy(n), nil
		case "slot":
			return ir.FixedSlotPolicy(n), nil
		}
	}

	/* fixed registers */
	if r, ok := arch.ParseRegister(s); ok {
		return ir.FixedRegisterPolicy(r), nil
	} else if r, ok := arch.ParseDoubleRegister(s); ok {
		return ir.FixedDoublePolicy(r), nil
	} else {
		return ir.Operand{}, fmt.Errorf("graphio: invalid result policy %q", s)
	}
}
