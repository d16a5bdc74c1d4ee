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


// Command maglev-regalloc allocates registers for a graph described in JSON
// and prints the result.
//
// Usage:
//
//	maglev-regalloc [flags] graph.json
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cloudwego/maglev/debug"
	"github.com/cloudwego/maglev/internal/arch"
	"github.com/cloudwego/maglev/internal/graphio"
	"github.com/cloudwego/maglev/internal/ir"
	"github.com/cloudwego/maglev/internal/opts"
	"github.com/cloudwego/maglev/internal/regalloc"
	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "", "TOML file with allocator options")
	dotFile    = flag.String("dot", "", "write the allocated control-flow graph in Graphviz format")
	svgFile    = flag.String("svg", "", "write the live range chart as SVG")
	dumpStats  = flag.Bool("dump", false, "dump the allocator statistics")
	trace      = flag.Bool("trace", false, "log every allocation decision")
	verify     = flag.Bool("verify", false, "check the register state after every node")
	general    = flag.Int("general", -1, "number of allocatable general registers, 0 for all")
	double     = flag.Int("double", -1, "number of allocatable double registers, 0 for all")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: maglev-regalloc [flags] graph.json")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "maglev-regalloc:", err)
		os.Exit(1)
	}
}

func options() (opts.Options, error) {
	o := opts.GetDefaultOptions()
	if *configFile != "" {
		var err error
		if o, err = opts.LoadFile(*configFile); err != nil {
			return o, err
		}
	}

	/* flags override the configuration file */
	if *general >= 0 {
		o.AllocatableGeneral = *general
	}
	if *double >= 0 {
		o.AllocatableDouble = *double
	}
	if *svgFile != "" {
		o.DrawLiveRanges = *svgFile
	}
	o.Trace = o.Trace || *trace
	o.Verify = o.Verify || *verify
	return o, o.Validate()
}

func logger(o opts.Options) (*zap.Logger, error) {
	if o.Trace {
		return zap.NewDevelopment()
	} else {
		return zap.NewNop(), nil
	}
}

func run(fn string) error {
	o, err := options()
	if err != nil {
		return err
	}

	/* load the graph */
	g, err := graphio.Load(fn)
	if err != nil {
		return err
	}

	/* check the register demand */
	regs := arch.AMD64().Limit(o.AllocatableGeneral, o.AllocatableDouble)
	if err = ir.VerifyRegisters(g, regs); err != nil {
		return err
	}

	/* allocate */
	log, err := logger(o)
	if err != nil {
		return err
	}
	defer log.Sync()
	if err = allocate(g, regalloc.Config{Registers: regs, Options: o, Logger: log}); err != nil {
		return err
	}
	fmt.Print(g.String())

	/* optional outputs */
	if *dotFile != "" {
		if err = writeDot(*dotFile, g); err != nil {
			return err
		}
	}
	if *dumpStats {
		spew.Fdump(os.Stderr, debug.GetStats())
	}
	return nil
}

// allocate reports a broken allocator invariant as an error.
func allocate(g *ir.Graph, cfg regalloc.Config) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if ie, ok := v.(*regalloc.InvariantError); ok {
				err = ie
			} else {
				panic(v)
			}
		}
	}()
	regalloc.Allocate(g, cfg)
	return nil
}

func writeDot(fn string, g *ir.Graph) error {
	fp, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err = ir.WriteDot(g, fp); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}
