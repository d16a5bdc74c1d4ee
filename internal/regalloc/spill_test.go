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
    `testing`

    `github.com/stretchr/testify/assert`
)

func TestSpillSlots_Reuse(t *testing.T) {
    var ss SpillSlots
    ss.Reuse = true

    /* A lives in [1, 5], C in [3, 8], B in [6, 9] */
    a := ss.Allocate(1, false)
    ss.Free(a, 5, false)
    c := ss.Allocate(3, false)
    b := ss.Allocate(6, false)
    assert.Equal(t, 0, a)
    assert.Equal(t, 1, c)
    assert.Equal(t, a, b)
    assert.Equal(t, 2, ss.Top)
    assert.Equal(t, 0, ss.FreeCount())
}

func TestSpillSlots_SameIdIsNotReused(t *testing.T) {
    ss := SpillSlots { Reuse: true }
    ss.Free(ss.Allocate(1, false), 4, false)
    assert.Equal(t, 1, ss.Allocate(4, false))
    assert.Equal(t, 0, ss.Allocate(5, false))
}

func TestSpillSlots_Doubles(t *testing.T) {
    ss := SpillSlots { Reuse: true }
    x := ss.Allocate(1, true)
    y := ss.Allocate(2, false)
    ss.Free(x, 3, true)
    ss.Free(y, 4, false)

    /* the most recent slot of the same kind */
    assert.Equal(t, x, ss.Allocate(10, true))
    assert.Equal(t, y, ss.Allocate(10, false))
    assert.Equal(t, 2, ss.Allocate(10, true))
}

func TestSpillSlots_OutOfOrderFree(t *testing.T) {
    ss := SpillSlots { Reuse: true }
    for i := 0; i < 3; i++ {
        ss.Allocate(1, false)
    }

    /* freed out of id order, still picked by id */
    ss.Free(0, 9, false)
    ss.Free(1, 3, false)
    ss.Free(2, 6, false)
    assert.Equal(t, 2, ss.Allocate(7, false))
    assert.Equal(t, 1, ss.Allocate(7, false))
    assert.Equal(t, 3, ss.Allocate(7, false))
    assert.Equal(t, 0, ss.Allocate(10, false))
}

func TestSpillSlots_NoReuse(t *testing.T) {
    var ss SpillSlots
    ss.Free(ss.Allocate(1, false), 2, false)
    assert.Equal(t, 1, ss.Allocate(3, false))
    assert.Equal(t, 2, ss.Top)
}
