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
    `html`
    `io`
    `strings`

    `github.com/oleiade/lane`
)

func dotLines(ss []string) string {
    var buf []string
    for _, s := range ss {
        for _, line := range strings.Split(s, "\n") {
            v := strings.ReplaceAll(html.EscapeString(line), " ", "&nbsp;")
            buf = append(buf, fmt.Sprintf(`<tr><td align="left">%s</td></tr>`, v))
        }
    }
    return strings.Join(buf, "")
}

func dotBlock(bb *BasicBlock) string {
    var ins []string
    for _, p := range bb.Phis { ins = append(ins, p.String()) }
    for _, n := range bb.Nodes { ins = append(ins, n.String()) }
    if bb.Control != nil { ins = append(ins, bb.Control.String()) }
    return fmt.Sprintf(
        `<table border="1" cellborder="0" cellspacing="0"><tr><td><b>bb_%d</b></td></tr>%s</table>`,
        bb.Id,
        dotLines(ins),
    )
}

// WriteDot writes the control-flow graph in Graphviz format. Blocks are
// visited breadth first from the entry, exception handlers are roots of
// their own.
func WriteDot(g *Graph, w io.Writer) error {
    q := lane.NewQueue()
    n := make(map[*BasicBlock]bool)
    e := make(map[[2]int]bool)
    buf := []string {
        "digraph CFG {",
        `    xdotversion = "15"`,
        `    graph [ fontname = "Fira Code" ]`,
        `    node [ fontname = "Fira Code" fontsize = "16" shape = "plaintext" ]`,
        `    edge [ fontname = "Fira Code" ]`,
        `    START [ shape = "circle" ]`,
        fmt.Sprintf(`    START -> bb_%d`, g.Entry().Id),
    }

    /* the entry and every handler start a traversal */
    for _, bb := range g.Blocks {
        if bb == g.Entry() || bb.ExceptionHandler {
            q.Enqueue(bb)
            n[bb] = true
        }
    }

    /* breadth first over the successors */
    for !q.Empty() {
        p := q.Dequeue().(*BasicBlock)
        buf = append(buf, fmt.Sprintf(`    bb_%d [ label = < %s > ]`, p.Id, dotBlock(p)))

        /* blocks under construction have no successors */
        if p.Control == nil {
            continue
        }

        /* add the edges */
        for i, ln := range Successors(p.Control) {
            if !n[ln] {
                n[ln] = true
                q.Enqueue(ln)
            }
            edge := [2]int { p.Id, ln.Id }
            if !e[edge] {
                e[edge] = true
                buf = append(buf, fmt.Sprintf(`    bb_%d -> bb_%d [ label = "%s" ]`, p.Id, ln.Id, edgeLabel(p.Control, i)))
            }
        }
    }

    /* write the graph */
    buf = append(buf, "}\n")
    _, err := io.WriteString(w, strings.Join(buf, "\n"))
    return err
}

func edgeLabel(c ControlNode, i int) string {
    switch v := c.(type) {
        case *JumpLoop : return "loop"
        case *Branch   : if i == 0 { return "true" } else { return "false" }
        case *Switch   : if i < len(v.Targets) { return fmt.Sprintf("%d", i) } else { return "otherwise" }
        default        : return "goto"
    }
}
