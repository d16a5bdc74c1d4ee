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
    `strings`

    `github.com/chenzhuoyu/iasm/x86_64`
    `golang.org/x/arch/x86/x86asm`
)

// Reg is the constraint satisfied by every register class. A register is
// identified by its hardware encoding, which is also its bit in a RegList.
type Reg interface {
    ~uint8
    fmt.Stringer
}

type (
    GeneralRegister uint8
    DoubleRegister  uint8
)

const (
    NumGeneralRegisters = 16
    NumDoubleRegisters  = 32
)

const (
    RAX GeneralRegister = iota
    RCX
    RDX
    RBX
    RSP
    RBP
    RSI
    RDI
    R8
    R9
    R10
    R11
    R12
    R13
    R14
    R15
)

const (
    XMM0 DoubleRegister = iota
    XMM1
    XMM2
    XMM3
    XMM4
    XMM5
    XMM6
    XMM7
    XMM8
    XMM9
    XMM10
    XMM11
    XMM12
    XMM13
    XMM14
    XMM15
    XMM16
    XMM17
    XMM18
    XMM19
    XMM20
    XMM21
    XMM22
    XMM23
    XMM24
    XMM25
    XMM26
    XMM27
    XMM28
    XMM29
    XMM30
    XMM31
)

var generalRegisters = [NumGeneralRegisters]struct {
    nat x86_64.Register64
    asm x86asm.Reg
} {
    { x86_64.RAX, x86asm.RAX },
    { x86_64.RCX, x86asm.RCX },
    { x86_64.RDX, x86asm.RDX },
    { x86_64.RBX, x86asm.RBX },
    { x86_64.RSP, x86asm.RSP },
    { x86_64.RBP, x86asm.RBP },
    { x86_64.RSI, x86asm.RSI },
    { x86_64.RDI, x86asm.RDI },
    { x86_64.R8 , x86asm.R8  },
    { x86_64.R9 , x86asm.R9  },
    { x86_64.R10, x86asm.R10 },
    { x86_64.R11, x86asm.R11 },
    { x86_64.R12, x86asm.R12 },
    { x86_64.R13, x86asm.R13 },
    { x86_64.R14, x86asm.R14 },
    { x86_64.R15, x86asm.R15 },
}

// Native returns the assembler register with the same encoding.
func (self GeneralRegister) Native() x86_64.Register64 {
    return generalRegisters[self].nat
}

// Asm returns the disassembler register with the same encoding.
func (self GeneralRegister) Asm() x86asm.Reg {
    return generalRegisters[self].asm
}

func (self GeneralRegister) IsValid() bool {
    return self < NumGeneralRegisters
}

func (self GeneralRegister) String() string {
    if !self.IsValid() {
        return fmt.Sprintf("r?%d", uint8(self))
    } else {
        return strings.ToLower(self.Asm().String())
    }
}

// Native returns the assembler register with the same encoding.
func (self DoubleRegister) Native() x86_64.XMMRegister {
    return x86_64.XMM0 + x86_64.XMMRegister(self)
}

func (self DoubleRegister) IsValid() bool {
    return self < NumDoubleRegisters
}

func (self DoubleRegister) String() string {
    if !self.IsValid() {
        return fmt.Sprintf("xmm?%d", uint8(self))
    } else {
        return self.Native().String()
    }
}

// ParseRegister looks up a general register by its lower case 64-bit name.
func ParseRegister(name string) (GeneralRegister, bool) {
    if r, ok := x86_64.Registers[name].(x86_64.Register64); !ok {
        return 0, false
    } else {
        return GeneralRegister(r), GeneralRegister(r).IsValid()
    }
}

// ParseDoubleRegister looks up a double register by its lower case name.
func ParseDoubleRegister(name string) (DoubleRegister, bool) {
    if r, ok := x86_64.Registers[name].(x86_64.XMMRegister); !ok {
        return 0, false
    } else {
        return DoubleRegister(r - x86_64.XMM0), DoubleRegister(r - x86_64.XMM0).IsValid()
    }
}
