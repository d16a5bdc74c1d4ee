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


package maglev

import (
	"fmt"

	"github.com/cloudwego/maglev/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithAllocatableRegisters limits the number of general and double registers
// handed out by the allocator. The return registers are always kept.
//
// Set a count to "0" to allocate every register of that class.
//
// The default value of both counts is "0".
func WithAllocatableRegisters(general int, double int) Option {
	if general < 0 || double < 0 {
		panic(fmt.Sprintf("maglev: invalid register limit: %d general, %d double", general, double))
	} else {
		return func(o *opts.Options) { o.AllocatableGeneral, o.AllocatableDouble = general, double }
	}
}

// WithStackSlotReuse controls whether a stack slot freed by a dead value is
// handed out again to values defined after it.
//
// Disabling it gives every spilled value its own slot, which makes the frame
// larger but the spill code easier to read.
//
// The default value of this option is "true".
func WithStackSlotReuse(v bool) Option {
	return func(o *opts.Options) { o.ReuseStackSlots = v }
}

// WithVerification checks the register state after every node, panicking with
// an *InvariantError on the first inconsistency.
//
// The default value of this option is "false".
func WithVerification(v bool) Option {
	return func(o *opts.Options) { o.Verify = v }
}

// WithTrace logs every allocation decision at debug level to the logger set
// with SetLogger.
//
// The default value of this option is "false".
func WithTrace(v bool) Option {
	return func(o *opts.Options) { o.Trace = v }
}

// WithLiveRangeChart writes an SVG chart of the live ranges to fn once the
// allocation is done. An empty name disables the chart.
func WithLiveRangeChart(fn string) Option {
	return func(o *opts.Options) { o.DrawLiveRanges = fn }
}

// SetStackSlotReuse sets the default of WithStackSlotReuse for all graphs
// from now on.
//
// This value can also be configured with the `MAGLEV_REUSE_STACK_SLOTS`
// environment variable.
//
// Returns the old opts.ReuseStackSlots value.
func SetStackSlotReuse(v bool) bool {
	v, opts.ReuseStackSlots = opts.ReuseStackSlots, v
	return v
}

// SetVerification sets the default of WithVerification for all graphs from
// now on.
//
// This value can also be configured with the `MAGLEV_VERIFY_REGALLOC`
// environment variable.
//
// Returns the old opts.VerifyRegalloc value.
func SetVerification(v bool) bool {
	v, opts.VerifyRegalloc = opts.VerifyRegalloc, v
	return v
}
