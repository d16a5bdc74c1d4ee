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

package arch

import (
    `math/bits`
    `strings`
)

// RegList is a set of registers of one class.
type RegList[R Reg] uint64

func MakeRegList[R Reg](regs ...R) RegList[R] {
    ret := RegList[R](0)
    for _, r := range regs { ret.Add(r) }
    return ret
}

func (self RegList[R]) Has(r R) bool {
    return self & (RegList[R](1) << r) != 0
}

func (self *RegList[R]) Add(r R) {
    *self |= RegList[R](1) << r
}

func (self *RegList[R]) Remove(r R) {
    *self &^= RegList[R](1) << r
}

func (self RegList[R]) Union(other RegList[R]) RegList[R] {
    return self | other
}

func (self RegList[R]) Intersect(other RegList[R]) RegList[R] {
    return self & other
}

func (self RegList[R]) Diff(other RegList[R]) RegList[R] {
    return self &^ other
}

func (self RegList[R]) Empty() bool {
    return self == 0
}

func (self RegList[R]) Count() int {
    return bits.OnesCount64(uint64(self))
}

// First returns the register with the lowest encoding, the list must not be empty.
func (self RegList[R]) First() R {
    if self == 0 {
        panic("regalloc: First() on empty register list")
    } else {
        return R(bits.TrailingZeros64(uint64(self)))
    }
}

// PopFirst removes and returns the register with the lowest encoding.
func (self *RegList[R]) PopFirst() R {
    r := self.First()
    self.Remove(r)
    return r
}

func (self RegList[R]) Slice() []R {
    ret := make([]R, 0, self.Count())
    for v := self; v != 0; {
        ret = append(ret, v.PopFirst())
    }
    return ret
}

func (self RegList[R]) String() string {
    nb := self.Slice()
    ss := make([]string, 0, len(nb))
    for _, r := range nb { ss = append(ss, r.String()) }
    return "{" + strings.Join(ss, ", ") + "}"
}
