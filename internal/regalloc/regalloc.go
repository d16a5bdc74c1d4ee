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
    `github.com/cloudwego/maglev/internal/opts`
    `go.uber.org/zap`
    `gonum.org/v1/gonum/graph/simple`
)

// Config selects the registers, options and logger of an allocation run.
type Config struct {
    Registers *arch.RegisterConfig
    Options   opts.Options
    Logger    *zap.Logger
}

// Allocator assigns a location to every input, result and temporary of a
// graph in a single pass over its blocks in layout order.
type Allocator struct {
    graph     *ir.Graph
    regs      *arch.RegisterConfig
    opts      opts.Options
    log       *zap.Logger
    general   *RegisterFrameState[arch.GeneralRegister]
    double    *RegisterFrameState[arch.DoubleRegister]
    tagged    SpillSlots
    untagged  SpillSlots
    block     *ir.BasicBlock
    current   ir.Node
    index     int
    atControl bool
    values    []*ir.ValueNode
    cfg       *simple.DirectedGraph
}

func newAllocator(g *ir.Graph, cfg Config) *Allocator {
    regs := cfg.Registers
    log := cfg.Logger

    /* fill in the defaults */
    if regs == nil {
        regs = arch.AMD64().Limit(cfg.Options.AllocatableGeneral, cfg.Options.AllocatableDouble)
    }
    if log == nil || !cfg.Options.Trace {
        log = zap.NewNop()
    }

    /* construct the allocator */
    return &Allocator {
        graph    : g,
        regs     : regs,
        opts     : cfg.Options,
        log      : log,
        general  : newGeneralFrameState(regs.General),
        double   : newDoubleFrameState(regs.Double),
        tagged   : SpillSlots { Reuse: cfg.Options.ReuseStackSlots },
        untagged : SpillSlots { Reuse: cfg.Options.ReuseStackSlots },
    }
}

// Allocate runs register allocation over a finished graph. Locations are
// written into the graph: inputs, results, temporaries, gap moves, merge
// point states and the stack slot counts. Invariant violations panic with
// an *InvariantError.
func Allocate(g *ir.Graph, cfg Config) {
    a := newAllocator(g, cfg)
    a.run()
}

func (self *Allocator) run() {
    ComputePostDominatingHoles(self.graph)
    MarkUses(self.graph)
    self.collectValues()
    self.traceGraph("before allocation")

    /* allocate every block */
    for _, bb := range self.graph.Blocks {
        self.allocateBlock(bb)
    }

    /* frame size */
    self.graph.TaggedStackSlots = self.tagged.Top
    self.graph.UntaggedStackSlots = self.untagged.Top
    self.traceGraph("after allocation")
    runCount.Inc()

    /* optional live range chart */
    if fn := self.opts.DrawLiveRanges; fn != "" {
        if err := DrawLiveRangesToFile(fn, self.graph); err != nil {
            self.log.Warn("cannot draw live ranges", zap.String("file", fn), zap.Error(err))
        }
    }
}

func (self *Allocator) collectValues() {
    self.values = append(self.values[:0], self.graph.Constants...)
    for _, bb := range self.graph.Blocks {
        for _, p := range bb.Phis {
            self.values = append(self.values, &p.ValueNode)
        }
        for _, n := range bb.Nodes {
            if v, ok := n.(*ir.ValueNode); ok {
                self.values = append(self.values, v)
            }
        }
    }
}

func (self *Allocator) currentId() ir.NodeId {
    return self.current.Base().Id()
}

func (self *Allocator) allocateBlock(bb *ir.BasicBlock) {
    self.block = bb
    self.current = bb.Control
    self.atControl = false
    self.traceBlock(bb)

    /* register state on entry */
    if bb.ExceptionHandler {
        self.enterExceptionHandler(bb)
    } else if bb.HasState() {
        if st := bb.State(); st != nil && st.IsInitialized() {
            self.initializeRegisterValues(st)
        } else {
            self.clearRegisterValues()
        }
    }

    /* phis first */
    if bb.HasPhi() {
        self.allocatePhis(bb)
    }

    /* nodes may shift while gap moves are inserted */
    for self.index = 0; self.index < len(bb.Nodes); self.index++ {
        switch n := bb.Nodes[self.index].(type) {
            case *ir.GapMove         : continue
            case *ir.ConstantGapMove : continue
            default                  : self.allocateNode(n)
        }
    }

    /* gap moves of the control node go to the end of the block */
    self.atControl = true
    self.allocateControlNode(bb.Control, bb)
}

func (self *Allocator) clearRegisterValues() {
    clearRegisters(self.general)
    clearRegisters(self.double)
}

func clearRegisters[R arch.Reg](fs *RegisterFrameState[R]) {
    for used := fs.Used(); !used.Empty(); used = fs.Used() {
        fs.FreeRegistersUsedBy(fs.GetValue(used.First()))
    }
}

// enterExceptionHandler starts a handler with an empty register file.
// Values still needed by the handler or after it are kept on the stack.
func (self *Allocator) enterExceptionHandler(bb *ir.BasicBlock) {
    spillLiveRegisters(self, self.general, bb)
    spillLiveRegisters(self, self.double, bb)
    self.clearRegisterValues()
}

func spillLiveRegisters[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], bb *ir.BasicBlock) {
    for _, r := range fs.Used().Slice() {
        if v := fs.GetValue(r); !v.IsDead() && v.LiveRange().End >= bb.FirstId() {
            a.spill(v)
        }
    }
}

// initializeRegisterValues replaces the frame with the content of a merge
// point state.
func (self *Allocator) initializeRegisterValues(st *ir.MergePointRegisterState) {
    self.clearRegisterValues()
    fillRegisters(self.general, st)
    fillRegisters(self.double, st)
}

func fillRegisters[R arch.Reg](fs *RegisterFrameState[R], st *ir.MergePointRegisterState) {
    for i, rs := range fs.States(st) {
        if r := R(i); rs.Node != nil && fs.Allocatable().Has(r) {
            fs.RemoveFromFree(r)
            fs.SetValueWithoutBlocking(r, rs.Node)
        }
    }
}

func (self *Allocator) allocatePhis(bb *ir.BasicBlock) {
    self.current = bb.Phis[0]

    /* the thrown object arrives in the return register */
    if bb.ExceptionHandler {
        for _, p := range bb.Phis {
            if p.ExceptionObject {
                self.current = p
                p.SetResult(forceAllocate(self, self.general, self.regs.ReturnRegister, &p.ValueNode, false))
                self.tracePhi(p, "exception object")
                break
            }
        }
    }

    /* prefer a register one of the inputs already lives in */
    for _, p := range bb.Phis {
        if self.current = p; !p.Result().IsAllocated() {
            self.tryAllocateToInput(p)
        }
    }

    /* then any free register */
    for _, p := range bb.Phis {
        if self.current = p; !p.Result().IsAllocated() && !self.general.UnblockedFreeIsEmpty() {
            r := self.general.AllocateRegister(&p.ValueNode)
            p.SetResult(self.general.Operand(r))
            self.tracePhi(p, "free register")
        }
    }

    /* finally a stack slot */
    for _, p := range bb.Phis {
        if self.current = p; !p.Result().IsAllocated() {
            self.spill(&p.ValueNode)
            p.SetResult(p.LoadableSlot())
            self.tracePhi(p, "stack slot")
        }
    }

    /* phis are done */
    self.general.ClearBlocked()
    self.double.ClearBlocked()
}

func (self *Allocator) tryAllocateToInput(p *ir.Phi) {
    for i := 0; i < p.InputCount(); i++ {
        if op := p.Input(i).Operand(); op.IsRegister() {
            if r := op.Register(); self.general.UnblockedFree().Has(r) {
                p.SetResult(forceAllocate(self, self.general, r, &p.ValueNode, false))
                self.tracePhi(p, "input register")
                return
            }
        }
    }
}

// addMoveBeforeCurrentNode inserts a gap move ahead of the node being
// allocated, or at the end of the block for a control node.
func (self *Allocator) addMoveBeforeCurrentNode(v *ir.ValueNode, source ir.Operand, target ir.Operand) {
    var mov ir.Node
    if source.IsConstant() {
        mov = ir.NewConstantGapMove(v, target)
    } else {
        mov = ir.NewGapMove(v, source, target)
    }

    /* insert the move */
    if self.atControl {
        self.block.AppendNode(mov)
    } else {
        self.block.InsertNode(self.index, mov)
        self.index++
    }

    /* update the counters */
    gapMoveCount.Inc()
    self.traceMove(mov)
}

// spill assigns a stack slot to a value that is not loadable yet. The slot
// is written right after the definition, so the value is loadable on every
// path from there on.
func (self *Allocator) spill(v *ir.ValueNode) {
    if v.IsLoadable() {
        return
    }

    /* choose the pool */
    pool := &self.untagged
    if v.Repr.IsTagged() {
        pool = &self.tagged
    }

    /* allocate the slot */
    slot := pool.Allocate(v.LiveRange().Start, v.UseDoubleRegister())
    v.Spill(ir.StackSlotOperand(slot, v.Repr.IsTagged()))
    spillCount.Inc()
    self.traceSpill(v)
}

func (self *Allocator) freeSpillSlot(v *ir.ValueNode) {
    slot := v.LoadableSlot()
    if slot.Index < 0 {
        return
    }

    /* return it to its pool */
    if slot.Tagged {
        self.tagged.Free(slot.Index, v.LiveRange().End, false)
    } else {
        self.untagged.Free(slot.Index, v.LiveRange().End, v.UseDoubleRegister())
    }
}

func (self *Allocator) freeRegistersUsedBy(v *ir.ValueNode) {
    if v.UseDoubleRegister() {
        self.double.FreeRegistersUsedBy(v)
    } else {
        self.general.FreeRegistersUsedBy(v)
    }
}

// updateUse consumes one use of the input's value, a value without further
// uses gives up its registers and its stack slot.
func (self *Allocator) updateUse(in *ir.Input) {
    v := in.Node()
    v.AdvanceNextUse(in.NextUse())

    /* still live */
    if !v.IsDead() {
        return
    }

    /* release everything */
    self.freeRegistersUsedBy(v)
    if v.IsSpilled() {
        self.freeSpillSlot(v)
    }
}

// location is where the value can be read from right now.
func (self *Allocator) location(v *ir.ValueNode) ir.Operand {
    if !v.HasRegister() && !v.IsLoadable() {
        invariantAt(self.current, "%s is neither in a register nor loadable", v.Name())
    }
    return v.Allocation()
}

// diesHere reports whether the current node is the last use of v, so the
// register holding it can be reused for the result without saving v. Values
// referenced by a deopt snapshot of the node must stay reachable unless
// they are loadable already.
func (self *Allocator) diesHere(v *ir.ValueNode) bool {
    if v.LiveRange().End != self.currentId() {
        return false
    }
    if v.IsLoadable() {
        return true
    }
    nb := self.current.Base()
    return !deoptRefers(nb.EagerDeopt, v) && !deoptRefers(nb.LazyDeopt, v)
}

func deoptRefers(di *ir.DeoptInfo, v *ir.ValueNode) bool {
    if di != nil {
        for i := range di.Locations {
            if di.Locations[i].Node() == v {
                return true
            }
        }
    }
    return false
}
