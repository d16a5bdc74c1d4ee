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
    `fmt`
    `math/rand`
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/maglev/internal/arch`
    `github.com/cloudwego/maglev/internal/ir`
    `github.com/google/gofuzz`
    `github.com/stretchr/testify/require`
)

const (
    _OpLoad = iota
    _OpAdd
    _OpCall
    _OpFloat
    _OpCheck
    _OpInPlace
    _OpCount
)

// _GraphGen builds random structured graphs out of straight segments,
// diamonds and switches joined by a phi, and counted loops. Values are
// scoped by dominance.
type _GraphGen struct {
    b  *ir.Builder
    f  *gofakeit.Faker
    fz *fuzz.Fuzzer
    k  *ir.ValueNode
    fs []*ir.ValueNode
}

func newGraphGen(seed int64) *_GraphGen {
    return &_GraphGen {
        b  : ir.NewBuilder(),
        f  : gofakeit.New(seed),
        fz : fuzz.New().NilChance(0).NumElements(1, 6).RandSource(rand.NewSource(seed)),
    }
}

func (self *_GraphGen) pick(scope []*ir.ValueNode) *ir.ValueNode {
    return scope[self.f.Number(0, len(scope) - 1)]
}

func (self *_GraphGen) frame(scope []*ir.ValueNode) *ir.DeoptFrame {
    return &ir.DeoptFrame { Values: []*ir.ValueNode { self.pick(scope), nil, self.k, self.pick(scope) } }
}

// straight appends a random run of nodes and returns the extended scope.
func (self *_GraphGen) straight(scope []*ir.ValueNode) []*ir.ValueNode {
    var ops []uint8
    self.fz.Fuzz(&ops)

    /* emit the nodes */
    for _, op := range ops {
        var v *ir.ValueNode
        switch op % _OpCount {
            case _OpLoad: {
                v = load(self.b, ir.Tagged)
            }
            case _OpAdd: {
                v = add(self.b, self.pick(scope), self.pick(scope))
            }
            case _OpCall: {
                v = self.b.Value(ir.Instr {
                    Op     : "Call",
                    Repr   : ir.Tagged,
                    Result : ir.FixedRegisterPolicy(arch.RAX),
                    Inputs : []ir.Use { ir.Fixed(self.pick(scope), arch.RCX), ir.Any(self.pick(scope)) },
                    Call   : true,
                    Lazy   : self.frame(scope),
                })
            }
            case _OpFloat: {
                f := load(self.b, ir.Float64)
                if len(self.fs) != 0 {
                    f = self.b.Value(ir.Instr {
                        Op          : "Float64Add",
                        Repr        : ir.Float64,
                        Result      : reg(),
                        Inputs      : []ir.Use { ir.Reg(f), ir.Reg(self.fs[len(self.fs) - 1]) },
                        DoubleTemps : 1,
                    })
                }
                self.fs = append(self.fs, f)
                continue
            }
            case _OpCheck: {
                v = self.b.Value(ir.Instr {
                    Op     : "CheckedInt32Add",
                    Repr   : ir.Int32,
                    Result : reg(),
                    Inputs : []ir.Use { ir.Reg(self.pick(scope)), ir.Any(self.pick(scope)) },
                    Eager  : self.frame(scope),
                })
            }
            case _OpInPlace: {
                v = self.b.Value(ir.Instr {
                    Op     : "Int32Increment",
                    Repr   : ir.Int32,
                    Result : ir.SameAsInputPolicy(0),
                    Inputs : []ir.Use { ir.Reg(self.pick(scope)) },
                    Temps  : 1,
                })
            }
        }
        scope = append(scope, v)
    }
    return scope
}

// diamond branches on a value in scope and joins both arms with a phi.
func (self *_GraphGen) diamond(scope []*ir.ValueNode) []*ir.ValueNode {
    nfs := len(self.fs)
    bt, bf, merge := self.b.NewBlock(), self.b.NewBlock(), self.b.NewBlock()
    self.b.Branch(ir.Reg(self.pick(scope)), bt, bf)

    /* the true arm */
    self.b.SetBlock(bt)
    st := self.straight(append([]*ir.ValueNode(nil), scope...))
    self.b.Jump(merge)

    /* the false arm does not see the floats of the true arm */
    self.fs = self.fs[:nfs]
    self.b.SetBlock(bf)
    sf := self.straight(append([]*ir.ValueNode(nil), scope...))
    self.b.Jump(merge)

    /* join */
    self.b.SetBlock(merge)
    p := self.b.Phi(merge, ir.Tagged, ir.Incoming { From: bt, Value: self.pick(st) }, ir.Incoming { From: bf, Value: self.pick(sf) })
    return append(scope, &p.ValueNode)
}

// switchMerge dispatches on a value in scope to up to four arms joined by
// a single phi.
func (self *_GraphGen) switchMerge(scope []*ir.ValueNode) []*ir.ValueNode {
    nfs := len(self.fs)
    arms := make([]*ir.BasicBlock, self.f.Number(2, 4))
    for i := range arms {
        arms[i] = self.b.NewBlock()
    }

    /* the last arm is the default */
    merge := self.b.NewBlock()
    self.b.Switch(ir.Reg(self.pick(scope)), arms[:len(arms) - 1], arms[len(arms) - 1])

    /* every arm sees the scope only */
    incoming := make([]ir.Incoming, 0, len(arms))
    for _, bb := range arms {
        self.fs = self.fs[:nfs]
        self.b.SetBlock(bb)
        sa := self.straight(append([]*ir.ValueNode(nil), scope...))
        incoming = append(incoming, ir.Incoming { From: bb, Value: self.pick(sa) })
        self.b.Jump(merge)
    }

    /* join */
    self.b.SetBlock(merge)
    p := self.b.Phi(merge, ir.Tagged, incoming...)
    return append(scope, &p.ValueNode)
}

// loop emits a counted loop whose body sees the scope and the counter.
func (self *_GraphGen) loop(scope []*ir.ValueNode) []*ir.ValueNode {
    pre := self.b.Block()
    header, body, exit := self.b.NewBlock(), self.b.NewBlock(), self.b.NewBlock()
    self.b.Jump(header)

    /* the counter and the exit test */
    self.b.SetBlock(header)
    i := self.b.Phi(header, ir.Int32, ir.Incoming { From: pre, Value: self.pick(scope) })
    cond := add(self.b, i, self.pick(scope))
    self.b.Branch(ir.Reg(cond), body, exit)

    /* the body feeds the counter */
    self.b.SetBlock(body)
    inner := self.straight(append([]*ir.ValueNode { &i.ValueNode, cond }, scope...))
    i.AddIncoming(body, inner[len(inner) - 1])
    self.b.JumpLoop(header)

    /* continue after the loop */
    self.b.SetBlock(exit)
    return append(scope, &i.ValueNode, cond)
}

// floats inside an arm or a loop body do not dominate what follows.
func (self *_GraphGen) segment(scope []*ir.ValueNode) []*ir.ValueNode {
    nfs := len(self.fs)
    defer func() { self.fs = self.fs[:nfs] }()

    /* choose the shape */
    switch self.f.Number(0, 3) {
        case 0  : return self.diamond(scope)
        case 1  : return self.loop(scope)
        case 2  : return self.switchMerge(scope)
        default : return self.straight(scope)
    }
}

func (self *_GraphGen) build() (*ir.Graph, error) {
    self.b.SetBlock(self.b.NewBlock())
    self.k = self.b.Constant(ir.Tagged, int64(self.f.Number(0, 1000)))

    /* a few values to start with */
    scope := []*ir.ValueNode { self.k, load(self.b, ir.Tagged), load(self.b, ir.Int32) }
    for n := self.f.Number(1, 5); n > 0; n-- {
        scope = self.segment(scope)
    }

    /* return one of them */
    self.b.Return(self.pick(scope))
    return self.b.Finish()
}

func TestAllocate_RandomGraphs(t *testing.T) {
    for seed := int64(1); seed <= 200; seed++ {
        for _, limit := range []int { 0, 4 } {
            t.Run(fmt.Sprintf("seed=%d/regs=%d", seed, limit), func(t *testing.T) {
                g, err := newGraphGen(seed).build()
                require.NoError(t, err)
                allocate(t, g, limit)
            })
        }
    }
}

func FuzzAllocate(f *testing.F) {
    for _, seed := range []int64 { 1, 7, 42, 1024 } {
        f.Add(seed, uint8(0))
        f.Add(seed, uint8(4))
    }

    /* registers below 4 cannot satisfy every generated node */
    f.Fuzz(func(t *testing.T, seed int64, limit uint8) {
        if limit != 0 && limit < 4 {
            t.Skip()
        }
        g, err := newGraphGen(seed).build()
        require.NoError(t, err)
        allocate(t, g, int(limit))
    })
}
