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
    `go.uber.org/zap`
)

func (self *Allocator) trace(msg string, fields ...zap.Field) {
    if ce := self.log.Check(zap.DebugLevel, msg); ce != nil {
        ce.Write(fields...)
    }
}

func (self *Allocator) traceGraph(msg string) {
    if ce := self.log.Check(zap.DebugLevel, msg); ce != nil {
        ce.Write(zap.Stringer("graph", self.graph))
    }
}

func (self *Allocator) traceBlock(bb *ir.BasicBlock) {
    self.trace("block",
        zap.Int("id", bb.Id),
        zap.Bool("merge", bb.HasState()),
        zap.Bool("loop", bb.IsLoopHeader()),
        zap.Stringer("general", self.general.Used()),
        zap.Stringer("double", self.double.Used()),
    )
}

func (self *Allocator) traceNode(n ir.Node) {
    self.trace("allocated",
        zap.Stringer("node", n),
        zap.Stringer("free", self.general.Free()),
        zap.Stringer("dfree", self.double.Free()),
    )
}

func (self *Allocator) tracePhi(p *ir.Phi, how string) {
    self.trace("phi", zap.String("name", p.Name()), zap.Stringer("result", p.Result()), zap.String("by", how))
}

func (self *Allocator) traceMove(mov ir.Node) {
    self.trace("gap move", zap.Stringer("move", mov), zap.Stringer("before", self.current))
}

func (self *Allocator) traceSpill(v *ir.ValueNode) {
    self.trace("spill", zap.String("value", v.Name()), zap.Stringer("slot", v.LoadableSlot()))
}

func (self *Allocator) traceMerge(target *ir.BasicBlock, pred int) {
    self.trace("merge", zap.Int("target", target.Id), zap.Int("predecessor", pred))
}

func (self *Allocator) traceResume(v *ir.ValueNode, c *ir.JumpLoop) {
    self.trace("resume value not spilled", zap.String("value", v.Name()), zap.Stringer("back edge", c))
}
