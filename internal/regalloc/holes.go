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
    `sort`

    `github.com/cloudwego/maglev/internal/ir`
)

// ComputePostDominatingHoles links every control node to the nearest
// control node after which code unreachable from it begins. Following the
// links from a node visits its hole chain, which ends in a terminal node or
// a JumpLoop.
func ComputePostDominatingHoles(g *ir.Graph) {
    for i := len(g.Blocks) - 1; i >= 0; i-- {
        switch c := g.Blocks[i].Control.(type) {
            case *ir.Jump          : c.SetNextPostDominatingHole(nearestPostDominatingHole(c.Target.Control))
            case *ir.JumpToInlined : c.SetNextPostDominatingHole(nearestPostDominatingHole(c.Target.Control))
            case *ir.Branch        : c.SetNextPostDominatingHole(highestPostDominatingHole(nearestPostDominatingHole(c.IfTrue.Control), nearestPostDominatingHole(c.IfFalse.Control)))
            case *ir.Switch        : c.SetNextPostDominatingHole(switchPostDominatingHole(c))
        }
    }
}

func isFallthrough(c ir.ControlNode, target *ir.BasicBlock) bool {
    return c.Base().Id() + 1 == target.FirstId()
}

// nearestPostDominatingHole is c itself unless c never skips code, in which
// case it is the hole c points to.
func nearestPostDominatingHole(c ir.ControlNode) ir.ControlNode {
    switch v := c.(type) {
        case *ir.Branch: {
            return v.NextPostDominatingHole()
        }
        case *ir.Jump: {
            if isFallthrough(v, v.Target) {
                return v.NextPostDominatingHole()
            }
        }
        case *ir.Switch: {
            if v.Fallthrough != nil {
                return v.NextPostDominatingHole()
            }
        }
    }
    return c
}

func isHoleChainEnd(c ir.ControlNode) bool {
    _, ok := c.(*ir.JumpLoop)
    return ok || ir.IsTerminal(c)
}

// highestPostDominatingHole walks both chains until they meet, or until the
// lower one ends, in which case the higher one wins.
func highestPostDominatingHole(first ir.ControlNode, second ir.ControlNode) ir.ControlNode {
    for first != second {
        if first.Base().Id() > second.Base().Id() {
            first, second = second, first
        }

        /* the lower branch ends before reaching the higher one */
        if isHoleChainEnd(first) {
            return second
        }

        /* step along the lower branch */
        if first = first.NextPostDominatingHole(); first == nil {
            return second
        }
    }
    return first
}

func switchPostDominatingHole(sw *ir.Switch) ir.ControlNode {
    succ := ir.Successors(sw)
    holes := make([]ir.ControlNode, len(succ))

    /* a single target shares its hole */
    if len(succ) == 1 {
        return nearestPostDominatingHole(succ[0].Control)
    }

    /* fold from the lowest hole upwards */
    for i, bb := range succ {
        holes[i] = nearestPostDominatingHole(bb.Control)
    }
    sort.Slice(holes, func(i int, j int) bool {
        return holes[i].Base().Id() > holes[j].Base().Id()
    })

    /* merge them pairwise */
    ret := holes[len(holes) - 1]
    for i := len(holes) - 2; i >= 0; i-- {
        ret = highestPostDominatingHole(ret, holes[i])
    }
    return ret
}
