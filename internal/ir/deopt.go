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
    `strings`
)

// DeoptFrame is the interpreter state snapshot of one (possibly inlined)
// frame. Nil values are optimized out.
type DeoptFrame struct {
    Values []*ValueNode
    Parent *DeoptFrame
}

// ForEach visits every live value of the frame chain, innermost frame first.
func (self *DeoptFrame) ForEach(fn func(v *ValueNode)) {
    for fp := self; fp != nil; fp = fp.Parent {
        for _, v := range fp.Values {
            if v != nil {
                fn(v)
            }
        }
    }
}

// DeoptInfo binds a frame snapshot to a node. Locations holds one input per
// value visited by Frame.ForEach, in the same order.
type DeoptInfo struct {
    Frame     *DeoptFrame
    Locations []Input
}

func NewDeoptInfo(frame *DeoptFrame) *DeoptInfo {
    ret := &DeoptInfo { Frame: frame }
    frame.ForEach(func(v *ValueNode) {
        ret.Locations = append(ret.Locations, NewInput(v, Unallocated(PolicyRegisterOrSlotOrConstant)))
    })
    return ret
}

func (self *DeoptInfo) String() string {
    ss := make([]string, 0, len(self.Locations))
    for i := range self.Locations { ss = append(ss, self.Locations[i].String()) }
    return "{" + strings.Join(ss, ", ") + "}"
}
