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


package opts

import (
	"os"
	"strconv"

	"github.com/xyproto/env/v2"
)

const (
	_DefaultAllocatableGeneral = 0    // every allocatable general register
	_DefaultAllocatableDouble  = 0    // every allocatable double register
	_DefaultReuseStackSlots    = true // reuse slots of dead values
)

var (
	AllocatableGeneral = parseOrDefault("MAGLEV_ALLOCATABLE_GENERAL", _DefaultAllocatableGeneral)
	AllocatableDouble  = parseOrDefault("MAGLEV_ALLOCATABLE_DOUBLE", _DefaultAllocatableDouble)
	ReuseStackSlots    = boolOrDefault("MAGLEV_REUSE_STACK_SLOTS", _DefaultReuseStackSlots)
	VerifyRegalloc     = boolOrDefault("MAGLEV_VERIFY_REGALLOC", false)
	TraceRegalloc      = boolOrDefault("MAGLEV_TRACE_REGALLOC", false)
	DrawLiveRanges     = env.Str("MAGLEV_DRAW_LIVE_RANGES")
)

func parseOrDefault(key string, def int) int {
	if val := env.Str(key); val == "" {
		return def
	} else if num, err := strconv.ParseUint(val, 0, 64); err != nil {
		panic("maglev: invalid value for " + key)
	} else {
		return int(num)
	}
}

func boolOrDefault(key string, def bool) bool {
	if val := env.Str(key); val == "" {
		return def
	} else if ret, err := strconv.ParseBool(val); err != nil {
		panic("maglev: invalid value for " + key)
	} else {
		return ret
	}
}

// LoadFile reads a TOML configuration on top of the defaults.
func LoadFile(fn string) (Options, error) {
	if buf, err := os.ReadFile(fn); err != nil {
		return Options{}, err
	} else {
		return Parse(buf)
	}
}
