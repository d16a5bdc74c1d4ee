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


// Package maglev is a straight-forward register allocator for scheduled SSA
// graphs. It walks the blocks once in layout order, keeping values in
// registers as long as possible and spilling them to stack slots only when
// registers run out or a call clobbers them.
package maglev

import (
	"errors"

	"github.com/cloudwego/maglev/internal/arch"
	"github.com/cloudwego/maglev/internal/ir"
	"github.com/cloudwego/maglev/internal/opts"
	"github.com/cloudwego/maglev/internal/regalloc"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type (
	Graph          = ir.Graph
	Builder        = ir.Builder
	BasicBlock     = ir.BasicBlock
	ValueNode      = ir.ValueNode
	Phi            = ir.Phi
	Instr          = ir.Instr
	Use            = ir.Use
	Incoming       = ir.Incoming
	DeoptFrame     = ir.DeoptFrame
	Operand        = ir.Operand
	Representation = ir.Representation
)

const (
	Tagged  = ir.Tagged
	Int32   = ir.Int32
	Uint32  = ir.Uint32
	Word64  = ir.Word64
	Float64 = ir.Float64
)

// NewBuilder starts a new graph.
func NewBuilder() *Builder {
	return ir.NewBuilder()
}

var logger atomic.Value

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger sets the logger used for allocation traces, see WithTrace.
//
// Returns the old logger.
func SetLogger(log *zap.Logger) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return logger.Swap(log).(*zap.Logger)
}

// AllocateRegisters assigns a location to every input, result and temporary
// of g. The graph must come from Builder.Finish.
//
// A graph needing more registers at a single node than configured is
// rejected with a LimitError before anything is modified. A broken
// allocator invariant is returned as an *InvariantError, g is then only
// partially allocated and must be discarded.
func AllocateRegisters(g *Graph, options ...Option) (err error) {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}

	/* check the limits */
	if err = o.Validate(); err != nil {
		return err
	}

	/* every node must be satisfiable */
	regs := arch.AMD64().Limit(o.AllocatableGeneral, o.AllocatableDouble)
	if err = ir.VerifyRegisters(g, regs); err != nil {
		return LimitError{Err: err}
	}

	/* invariant violations are reported as errors */
	defer func() {
		if v := recover(); v != nil {
			var ie *InvariantError
			if e, ok := v.(error); ok && errors.As(e, &ie) {
				err = ie
			} else {
				panic(v)
			}
		}
	}()

	/* allocate */
	regalloc.Allocate(g, regalloc.Config{
		Registers: regs,
		Options:   o,
		Logger:    logger.Load().(*zap.Logger),
	})
	return nil
}
