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

    `github.com/cloudwego/maglev/internal/arch`
    `github.com/cloudwego/maglev/internal/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestRegisterFrameState_Allocate(t *testing.T) {
    fs := newGeneralFrameState(arch.MakeRegList(arch.RAX, arch.RCX, arch.RDX))
    v := &ir.ValueNode { Repr: ir.Tagged }
    w := &ir.ValueNode { Repr: ir.Tagged }

    /* the first unblocked free register is handed out and blocked */
    r := fs.AllocateRegister(v)
    require.Equal(t, arch.RAX, r)
    assert.True(t, fs.IsBlocked(arch.RAX))
    assert.Equal(t, v, fs.GetValue(arch.RAX))
    assert.Equal(t, arch.MakeRegList(arch.RCX, arch.RDX), fs.UnblockedFree())
    assert.Equal(t, ir.RegisterOperand(arch.RAX), v.Allocation())

    /* blocked free registers are not handed out */
    fs.Block(arch.RCX)
    assert.Equal(t, arch.RDX, fs.AllocateRegister(w))
    assert.True(t, fs.UnblockedFreeIsEmpty())
    assert.Panics(t, func() { fs.AllocateRegister(&ir.ValueNode{}) })

    /* freeing keeps the blocked bits */
    fs.FreeRegistersUsedBy(v)
    assert.False(t, v.HasRegister())
    assert.True(t, fs.Free().Has(arch.RAX))
    assert.True(t, fs.UnblockedFreeIsEmpty())
    fs.ClearBlocked()
    assert.Equal(t, arch.MakeRegList(arch.RAX, arch.RCX), fs.UnblockedFree())
    assert.Equal(t, arch.MakeRegList(arch.RDX), fs.Used())
    assert.Panics(t, func() { fs.GetValue(arch.RAX) })
}

func TestRegisterFrameState_Double(t *testing.T) {
    fs := newDoubleFrameState(arch.MakeRegList(arch.XMM0, arch.XMM1))
    v := &ir.ValueNode { Repr: ir.Float64 }

    /* values may sit in several registers */
    fs.RemoveFromFree(arch.XMM1)
    fs.SetValueWithoutBlocking(arch.XMM1, v)
    fs.RemoveFromFree(arch.XMM0)
    fs.SetValue(arch.XMM0, v)
    assert.Equal(t, 2, v.NumRegisters())
    assert.Equal(t, ir.DoubleRegisterOperand(arch.XMM0), v.Allocation())
    assert.Equal(t, arch.MakeRegList(arch.XMM0), fs.Blocked())
    assert.Equal(t, arch.XMM1, fs.Register(ir.DoubleRegisterOperand(arch.XMM1)))

    /* merge point entries of the right class */
    var st ir.MergePointRegisterState
    assert.Len(t, fs.States(&st), arch.NumDoubleRegisters)
    fs.FreeRegistersUsedBy(v)
    assert.Equal(t, fs.Allocatable(), fs.Free())
}
