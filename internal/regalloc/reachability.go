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
    `github.com/cloudwego/maglev/internal/ir`
    `gonum.org/v1/gonum/graph`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/traverse`
)

func buildBlockGraph(g *ir.Graph) *simple.DirectedGraph {
    ret := simple.NewDirectedGraph()
    for _, bb := range g.Blocks {
        ret.AddNode(simple.Node(bb.Id))
    }

    /* self loops are implied by reachability */
    for _, bb := range g.Blocks {
        for _, succ := range ir.Successors(bb.Control) {
            if succ != bb {
                ret.SetEdge(ret.NewEdge(simple.Node(bb.Id), simple.Node(succ.Id)))
            }
        }
    }
    return ret
}

// reaches reports whether control can flow from the definition block `from`
// to block `to`. The search is breadth first and visits each block at most
// once, so it is bounded by the number of blocks.
func (self *Allocator) reaches(from *ir.BasicBlock, to *ir.BasicBlock) bool {
    if from == nil || from == to {
        return true
    }

    /* the block graph is built on first use */
    if self.cfg == nil {
        self.cfg = buildBlockGraph(self.graph)
    }

    /* stop at the target, or once the whole graph has been seen */
    limit := len(self.graph.Blocks)
    bfs := traverse.BreadthFirst{}
    ret := bfs.Walk(self.cfg, simple.Node(from.Id), func(n graph.Node, depth int) bool {
        return n.ID() == int64(to.Id) || depth > limit
    })
    return ret != nil && ret.ID() == int64(to.Id)
}
