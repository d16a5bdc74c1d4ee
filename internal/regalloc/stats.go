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
    `go.uber.org/atomic`
)

var (
    runCount      = atomic.NewInt64(0)
    spillCount    = atomic.NewInt64(0)
    gapMoveCount  = atomic.NewInt64(0)
    mergeCount    = atomic.NewInt64(0)
    evictionCount = atomic.NewInt64(0)
)

// Counters is a snapshot of the process wide allocation counters.
type Counters struct {
    Runs      int64
    Spills    int64
    GapMoves  int64
    Merges    int64
    Evictions int64
}

func GetCounters() Counters {
    return Counters {
        Runs      : runCount.Load(),
        Spills    : spillCount.Load(),
        GapMoves  : gapMoveCount.Load(),
        Merges    : mergeCount.Load(),
        Evictions : evictionCount.Load(),
    }
}
