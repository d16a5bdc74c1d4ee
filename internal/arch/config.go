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

package arch

import (
    `fmt`

    `github.com/klauspost/cpuid/v2`
)

// RegisterConfig describes the registers the allocator may hand out.
type RegisterConfig struct {
    General        RegList[GeneralRegister]
    Double         RegList[DoubleRegister]
    ReturnRegister GeneralRegister
    ReturnDouble   DoubleRegister
    Scratch        GeneralRegister
    ScratchDouble  DoubleRegister
}

var (
    defaultGeneral = MakeRegList(RAX, RCX, RDX, RBX, RSI, RDI, R8, R9, R11, R12, R14, R15)
    defaultDouble  = MakeRegList(XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14)
)

// AMD64 returns the x86-64 register configuration. RSP and RBP hold the
// frame, R10 and XMM15 are scratch registers for the code generator, and
// R13 holds the root register. The upper 16 vector registers are handed
// out only when the host has AVX-512.
func AMD64() *RegisterConfig {
    ret := &RegisterConfig {
        General        : defaultGeneral,
        Double         : defaultDouble,
        ReturnRegister : RAX,
        ReturnDouble   : XMM0,
        Scratch        : R10,
        ScratchDouble  : XMM15,
    }

    /* EVEX encoding can address XMM16 ~ XMM31 */
    if cpuid.CPU.Supports(cpuid.AVX512F) {
        for r := XMM16; r <= XMM31; r++ {
            ret.Double.Add(r)
        }
    }
    return ret
}

// Limit returns a copy of the configuration with at most `general` general
// registers and `double` double registers allocatable. The return registers
// are always kept. A limit of 0 means unlimited.
func (self *RegisterConfig) Limit(general int, double int) *RegisterConfig {
    ret := *self
    ret.General = limitRegs(self.General, self.ReturnRegister, general)
    ret.Double = limitRegs(self.Double, self.ReturnDouble, double)
    return &ret
}

func limitRegs[R Reg](regs RegList[R], keep R, n int) RegList[R] {
    if n < 0 {
        panic(fmt.Sprintf("regalloc: invalid register limit: %d", n))
    }

    /* no limit, or nothing to cut */
    if n == 0 || n >= regs.Count() {
        return regs
    }

    /* the return register goes first */
    ret := RegList[R](0)
    rem := regs

    /* keep the return register if it is allocatable */
    if rem.Has(keep) {
        ret.Add(keep)
        rem.Remove(keep)
    }

    /* fill with the lowest encodings */
    for ret.Count() < n {
        ret.Add(rem.PopFirst())
    }
    return ret
}

func (self *RegisterConfig) IsAllocatable(r GeneralRegister) bool {
    return self.General.Has(r)
}

func (self *RegisterConfig) IsAllocatableDouble(r DoubleRegister) bool {
    return self.Double.Has(r)
}
