/*
 * Copyright 2021 ByteDance Inc.
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
    `fmt`

    `github.com/cloudwego/maglev/internal/ir`
    `github.com/cloudwego/maglev/internal/regalloc`
)

// GraphError occures when a graph violates a structural rule the allocator
// relies on, for example a critical edge that was not split.
type GraphError = ir.GraphError

// InvariantError occures when the allocator reaches a state that a verified
// graph can never produce. It always indicates a bug in the allocator.
type InvariantError = regalloc.InvariantError

// LimitError occures when the register configuration cannot satisfy the
// register demand of a single node.
type LimitError struct {
    Err error
}

func (self LimitError) Error() string {
    return fmt.Sprintf("register limit: %v", self.Err)
}

func (self LimitError) Unwrap() error {
    return self.Err
}
