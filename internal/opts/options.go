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
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

type Options struct {
	AllocatableGeneral int    `toml:"allocatable_general"`
	AllocatableDouble  int    `toml:"allocatable_double"`
	ReuseStackSlots    bool   `toml:"reuse_stack_slots"`
	Verify             bool   `toml:"verify"`
	Trace              bool   `toml:"trace"`
	DrawLiveRanges     string `toml:"draw_live_ranges"`
}

// Validate rejects register limits no graph could be allocated with.
func (self *Options) Validate() error {
	if self.AllocatableGeneral < 0 {
		return fmt.Errorf("maglev: invalid allocatable general register count: %d", self.AllocatableGeneral)
	} else if self.AllocatableDouble < 0 {
		return fmt.Errorf("maglev: invalid allocatable double register count: %d", self.AllocatableDouble)
	} else {
		return nil
	}
}

func GetDefaultOptions() Options {
	return Options{
		AllocatableGeneral: AllocatableGeneral,
		AllocatableDouble:  AllocatableDouble,
		ReuseStackSlots:    ReuseStackSlots,
		Verify:             VerifyRegalloc,
		Trace:              TraceRegalloc,
		DrawLiveRanges:     DrawLiveRanges,
	}
}

// Parse decodes a TOML configuration, keys it does not set keep their
// default values.
func Parse(buf []byte) (Options, error) {
	ret := GetDefaultOptions()
	if err := toml.Unmarshal(buf, &ret); err != nil {
		return Options{}, err
	} else if err = ret.Validate(); err != nil {
		return Options{}, err
	} else {
		return ret, nil
	}
}
