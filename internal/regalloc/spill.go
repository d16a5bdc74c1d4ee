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
    `sort`

    `github.com/cloudwego/maglev/internal/ir`
    `golang.org/x/exp/slices`
)

type _FreeSlot struct {
    index   int
    freedAt ir.NodeId
    double  bool
}

// SpillSlots is one stack slot pool. Freed slots are kept ordered by the
// id at which their previous owner died.
type SpillSlots struct {
    Top   int
    Reuse bool
    free  []_FreeSlot
}

// Allocate returns a slot for a value whose live range starts at `start`.
// A freed slot is reused only if its previous owner died strictly before
// `start` and it has the same double-ness, the most recently freed one is
// preferred.
func (self *SpillSlots) Allocate(start ir.NodeId, double bool) int {
    if self.Reuse {
        i := sort.Search(len(self.free), func(i int) bool { return self.free[i].freedAt >= start })
        for i--; i >= 0; i-- {
            if self.free[i].double == double {
                ret := self.free[i].index
                self.free = slices.Delete(self.free, i, i + 1)
                return ret
            }
        }
    }

    /* grow the frame */
    ret := self.Top
    self.Top++
    return ret
}

// Free hands a slot back to the pool.
func (self *SpillSlots) Free(index int, freedAt ir.NodeId, double bool) {
    fs := _FreeSlot { index: index, freedAt: freedAt, double: double }
    nb := len(self.free)

    /* slots are usually freed in id order */
    if nb == 0 || self.free[nb - 1].freedAt <= freedAt {
        self.free = append(self.free, fs)
        return
    }

    /* keep the list sorted otherwise */
    i := sort.Search(nb, func(i int) bool { return self.free[i].freedAt > freedAt })
    self.free = slices.Insert(self.free, i, fs)
}

// FreeCount is the number of slots waiting for reuse.
func (self *SpillSlots) FreeCount() int {
    return len(self.free)
}
