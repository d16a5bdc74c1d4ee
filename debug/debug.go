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


package debug

import (
	"github.com/cloudwego/maglev/internal/regalloc"
)

// A Stats records statistics about the register allocator.
type Stats struct {
	Runs   int
	Values ValueStats
	Moves  MoveStats
}

// A ValueStats records how values were kept alive.
type ValueStats struct {
	Spills    int
	Evictions int
}

// A MoveStats records the moves the allocator asked the code generator for.
type MoveStats struct {
	GapMoves int
	Merges   int
}

// GetStats returns statistics of the register allocator.
func GetStats() Stats {
	c := regalloc.GetCounters()
	return Stats{
		Runs: int(c.Runs),
		Values: ValueStats{
			Spills:    int(c.Spills),
			Evictions: int(c.Evictions),
		},
		Moves: MoveStats{
			GapMoves: int(c.GapMoves),
			Merges:   int(c.Merges),
		},
	}
}
