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

    `github.com/cloudwego/maglev/internal/ir`
)

// InvariantError is the panic value raised when allocation reaches a state
// that a well-formed graph can never produce.
type InvariantError struct {
    Node   string
    Reason string
}

func (self *InvariantError) Error() string {
    if self.Node == "" {
        return "regalloc: " + self.Reason
    } else {
        return fmt.Sprintf("regalloc: at %s: %s", self.Node, self.Reason)
    }
}

func invariant(format string, args ...interface{}) {
    panic(&InvariantError { Reason: fmt.Sprintf(format, args...) })
}

func invariantAt(n ir.Node, format string, args ...interface{}) {
    panic(&InvariantError {
        Node   : n.String(),
        Reason : fmt.Sprintf(format, args...),
    })
}
