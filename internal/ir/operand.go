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

package ir

import (
    `fmt`

    `github.com/cloudwego/maglev/internal/arch`
)

// Representation is the machine representation of a value.
type Representation uint8

const (
    Tagged Representation = iota
    Int32
    Uint32
    Word64
    Float64
)

// IsDouble reports whether values of this representation live in double registers.
func (self Representation) IsDouble() bool {
    return self == Float64
}

// IsTagged reports whether values of this representation are spilled to the tagged slot pool.
func (self Representation) IsTagged() bool {
    return self == Tagged
}

func (self Representation) String() string {
    switch self {
        case Tagged  : return "Tagged"
        case Int32   : return "Int32"
        case Uint32  : return "Uint32"
        case Word64  : return "Word64"
        case Float64 : return "Float64"
        default      : return fmt.Sprintf("Representation(%d)", uint8(self))
    }
}

// Policy is the allocation constraint of an unallocated operand.
type Policy uint8

const (
    PolicyNone Policy = iota
    PolicyFixedRegister
    PolicyFixedDoubleRegister
    PolicyMustHaveRegister
    PolicySameAsInput
    PolicyRegisterOrSlot
    PolicyRegisterOrSlotOrConstant
    PolicyFixedSlot
)

func (self Policy) String() string {
    switch self {
        case PolicyNone                     : return "none"
        case PolicyFixedRegister            : return "fixed"
        case PolicyFixedDoubleRegister      : return "fixed_double"
        case PolicyMustHaveRegister         : return "register"
        case PolicySameAsInput              : return "same_as_input"
        case PolicyRegisterOrSlot           : return "register_or_slot"
        case PolicyRegisterOrSlotOrConstant : return "any"
        case PolicyFixedSlot                : return "fixed_slot"
        default                             : return fmt.Sprintf("Policy(%d)", uint8(self))
    }
}

// Kind is the kind of location an operand refers to.
type Kind uint8

const (
    KindInvalid Kind = iota
    KindUnallocated
    KindConstant
    KindRegister
    KindDoubleRegister
    KindStackSlot
)

// Operand is either an allocation constraint (KindUnallocated) or a concrete
// location. Index is the register code, the stack slot index, the constant
// index, or the input index for PolicySameAsInput.
type Operand struct {
    Kind   Kind
    Policy Policy
    Index  int
    Tagged bool
}

func Unallocated(policy Policy) Operand {
    return Operand { Kind: KindUnallocated, Policy: policy }
}

func FixedRegisterPolicy(reg arch.GeneralRegister) Operand {
    return Operand { Kind: KindUnallocated, Policy: PolicyFixedRegister, Index: int(reg) }
}

func FixedDoublePolicy(reg arch.DoubleRegister) Operand {
    return Operand { Kind: KindUnallocated, Policy: PolicyFixedDoubleRegister, Index: int(reg) }
}

func SameAsInputPolicy(input int) Operand {
    return Operand { Kind: KindUnallocated, Policy: PolicySameAsInput, Index: input }
}

// FixedSlotPolicy pins a result to an existing frame slot, parameters use
// negative indices.
func FixedSlotPolicy(index int) Operand {
    return Operand { Kind: KindUnallocated, Policy: PolicyFixedSlot, Index: index }
}

func RegisterOperand(reg arch.GeneralRegister) Operand {
    return Operand { Kind: KindRegister, Index: int(reg) }
}

func DoubleRegisterOperand(reg arch.DoubleRegister) Operand {
    return Operand { Kind: KindDoubleRegister, Index: int(reg) }
}

func StackSlotOperand(index int, tagged bool) Operand {
    return Operand { Kind: KindStackSlot, Index: index, Tagged: tagged }
}

func ConstantOperand(index int) Operand {
    return Operand { Kind: KindConstant, Index: index }
}

func (self Operand) IsValid() bool          { return self.Kind != KindInvalid }
func (self Operand) IsUnallocated() bool    { return self.Kind == KindUnallocated }
func (self Operand) IsConstant() bool       { return self.Kind == KindConstant }
func (self Operand) IsRegister() bool       { return self.Kind == KindRegister }
func (self Operand) IsDoubleRegister() bool { return self.Kind == KindDoubleRegister }
func (self Operand) IsStackSlot() bool      { return self.Kind == KindStackSlot }

func (self Operand) IsAllocated() bool {
    return self.Kind >= KindConstant
}

func (self Operand) IsAnyRegister() bool {
    return self.Kind == KindRegister || self.Kind == KindDoubleRegister
}

func (self Operand) Register() arch.GeneralRegister {
    if self.Kind != KindRegister && !self.isFixed(PolicyFixedRegister) {
        panic("regalloc: operand is not a general register: " + self.String())
    } else {
        return arch.GeneralRegister(self.Index)
    }
}

func (self Operand) DoubleRegister() arch.DoubleRegister {
    if self.Kind != KindDoubleRegister && !self.isFixed(PolicyFixedDoubleRegister) {
        panic("regalloc: operand is not a double register: " + self.String())
    } else {
        return arch.DoubleRegister(self.Index)
    }
}

func (self Operand) isFixed(p Policy) bool {
    return self.Kind == KindUnallocated && self.Policy == p
}

func (self Operand) String() string {
    switch self.Kind {
        case KindInvalid        : return "<invalid>"
        case KindConstant       : return fmt.Sprintf("#%d", self.Index)
        case KindRegister       : return arch.GeneralRegister(self.Index).String()
        case KindDoubleRegister : return arch.DoubleRegister(self.Index).String()
        case KindStackSlot      : return self.slotString()
        case KindUnallocated    : return self.policyString()
        default                 : return fmt.Sprintf("Operand(%d)", uint8(self.Kind))
    }
}

func (self Operand) slotString() string {
    if self.Tagged {
        return fmt.Sprintf("[stack:%d|t]", self.Index)
    } else {
        return fmt.Sprintf("[stack:%d]", self.Index)
    }
}

func (self Operand) policyString() string {
    switch self.Policy {
        case PolicyFixedRegister       : return "(=" + arch.GeneralRegister(self.Index).String() + ")"
        case PolicyFixedDoubleRegister : return "(=" + arch.DoubleRegister(self.Index).String() + ")"
        case PolicySameAsInput         : return fmt.Sprintf("(=%d)", self.Index)
        case PolicyFixedSlot           : return fmt.Sprintf("(=[stack:%d])", self.Index)
        default                        : return "(" + self.Policy.String() + ")"
    }
}
