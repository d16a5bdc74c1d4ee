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
    `io`
    `os`

    `github.com/ajstarks/svgo`
    `github.com/cloudwego/maglev/internal/ir`
)

const (
    _RowHeight = 24
    _CharWidth = 9
)

type _Row struct {
    y    int
    text string
}

// DrawLiveRanges renders one column per value: a bar from its definition
// to the end of its live range, with a hollow circle at the definition and
// filled circles at the uses.
func DrawLiveRanges(w io.Writer, g *ir.Graph) {
    var rows []_Row
    var vals []*ir.ValueNode

    /* lay out the rows */
    maxi := 0
    ypos := make(map[ir.NodeId]int)
    uses := make(map[*ir.ValueNode][]int)
    for _, bb := range g.Blocks {
        rows = append(rows, _Row { text: fmt.Sprintf("bb_%d", bb.Id) })
        for _, p := range bb.Phis {
            rows = append(rows, _Row { text: p.String() })
            ypos[p.Id()] = len(rows)
            vals = append(vals, &p.ValueNode)
        }
        for _, n := range append(append([]ir.Node(nil), bb.Nodes...), bb.Control) {
            rows = append(rows, _Row { text: n.String() })
            if id := n.Base().Id(); id != ir.InvalidNodeId {
                ypos[id] = len(rows)
            }
            if v, ok := n.(*ir.ValueNode); ok && v.HasValidLiveRange() {
                vals = append(vals, v)
            }
        }
    }

    /* record the uses */
    for _, bb := range g.Blocks {
        for _, n := range append(append([]ir.Node(nil), bb.Nodes...), bb.Control) {
            nb := n.Base()
            for i := range nb.Inputs() {
                uses[nb.Input(i).Node()] = append(uses[nb.Input(i).Node()], ypos[nb.Id()])
            }
        }
        if t, ok := ir.UnconditionalTarget(bb.Control); ok {
            for _, p := range t.Phis {
                v := p.Input(bb.PredecessorId()).Node()
                uses[v] = append(uses[v], ypos[bb.Control.Base().Id()])
            }
        }
    }

    /* row geometry */
    for i := range rows {
        rows[i].y = 95 + i * _RowHeight
        if len(rows[i].text) > maxi {
            maxi = len(rows[i].text)
        }
    }

    /* canvas */
    insw := maxi * _CharWidth + 120
    colw := 64
    p := svg.New(w)
    p.Start(len(vals) * colw + insw + 100, len(rows) * _RowHeight + 100)
    p.Rect(0, 0, len(vals) * colw + insw + 100, len(rows) * _RowHeight + 100, "fill:white")

    /* instructions */
    for _, r := range rows {
        p.Text(insw, r.y + 5, r.text, "fill:black;font-size:16px;font-family:monospace;text-anchor:end")
        p.Line(insw + 10, r.y, len(vals) * colw + insw + 50, r.y, "stroke:lightgray")
    }

    /* live ranges */
    for i, v := range vals {
        x := insw + i * colw + 50
        y0 := rows[ypos[v.Id()] - 1].y
        y1 := y0
        if e, ok := ypos[v.LiveRange().End]; ok {
            y1 = rows[e - 1].y
        }

        /* the bar and its label */
        p.Text(x, 60, v.Name(), "fill:black;font-size:14px;font-family:monospace;text-anchor:middle")
        p.Text(x, 78, v.Result().String(), "fill:gray;font-size:12px;font-family:monospace;text-anchor:middle")
        p.Line(x, y0, x, y1, "stroke:black;stroke-width:3")
        p.Circle(x, y0, 4, "fill:white;stroke:black;stroke-width:2")

        /* the uses */
        for _, u := range uses[v] {
            if u > 0 {
                p.Circle(x, rows[u - 1].y, 4, "fill:black;stroke:black;stroke-width:2")
            }
        }
    }
    p.End()
}

// DrawLiveRangesToFile writes the live range chart of g to an SVG file.
func DrawLiveRangesToFile(fn string, g *ir.Graph) error {
    fp, err := os.OpenFile(fn, os.O_RDWR | os.O_CREATE | os.O_TRUNC, 0644)
    if err != nil {
        return err
    }
    DrawLiveRanges(fp, g)
    return fp.Close()
}
