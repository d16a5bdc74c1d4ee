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
    `github.com/davecgh/go-spew/spew`
)

var stateDumper = spew.ConfigState {
    Indent                  : "    ",
    MaxDepth                : 2,
    DisableMethods          : false,
    DisablePointerAddresses : true,
}

// verifyRegisterState checks that the frame and the values agree on every
// register, in both directions.
func (self *Allocator) verifyRegisterState() {
    verifyFrame(self, self.general)
    verifyFrame(self, self.double)

    /* a call leaves nothing but its own result in registers */
    if self.current.Base().IsCall() {
        verifyClobbered(self, self.general)
        verifyClobbered(self, self.double)
    }

    /* every register a value claims must map back to it */
    for _, v := range self.values {
        if !v.HasRegister() {
            continue
        }
        if v.UseDoubleRegister() {
            verifyValue(self, self.double, v)
        } else {
            verifyValue(self, self.general, v)
        }
    }
}

func verifyFrame[R arch.Reg](a *Allocator, fs *RegisterFrameState[R]) {
    for _, r := range fs.Allocatable().Slice() {
        v := fs.values[r]
        switch {
            case fs.Free().Has(r) && v != nil:
                invariantAt(a.current, "free register %s holds %s", r, v.Name())
            case !fs.Free().Has(r) && v == nil:
                invariantAt(a.current, "used register %s holds nothing", r)
            case v != nil && !ir.Registers[R](v).Has(r):
                invariantAt(a.current, "%s is in %s but does not know it: %s", v.Name(), r, stateDumper.Sdump(v.LiveRange()))
            case v != nil && v.IsDead():
                invariantAt(a.current, "dead value %s still occupies %s", v.Name(), r)
        }
    }
}

func verifyValue[R arch.Reg](a *Allocator, fs *RegisterFrameState[R], v *ir.ValueNode) {
    for _, r := range ir.Registers[R](v).Slice() {
        if !fs.Allocatable().Has(r) || fs.values[r] != v {
            invariantAt(a.current, "%s claims %s which the frame does not assign to it", v.Name(), r)
        }
    }
}

func verifyClobbered[R arch.Reg](a *Allocator, fs *RegisterFrameState[R]) {
    res, _ := a.current.(*ir.ValueNode)
    for _, r := range fs.Used().Slice() {
        if v := fs.values[r]; v != res {
            invariantAt(a.current, "%s still holds %s after a call", r, v.Name())
        }
    }
}
