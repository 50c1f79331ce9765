// Package preview 把计划渲染成给人看的文本：对齐的表格，以及改名前后文件清单的 unified diff。
package preview

import (
	"fmt"
	"sort"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/John-Robertt/imgseq/internal/app/planner"
	"github.com/John-Robertt/imgseq/internal/domain"
)

var tableHeader = []string{"original", "detected_id", "final_id", "proposed_name"}

// Row 是表格中的一行（已格式化为字符串）。web 模板与 Table 共用。
type Row struct {
	Original   string
	DetectedID string
	FinalID    string
	Proposed   string
}

// Rows 按计划顺序生成表格行；未识别到编号时 DetectedID 为空串，FinalID 为三位补零形式。
func Rows(plan []domain.PlanEntry) []Row {
	rows := make([]Row, 0, len(plan))
	for _, e := range plan {
		r := Row{
			Original: e.Item.Name,
			FinalID:  planner.FormatID(e.FinalID),
			Proposed: e.TargetName,
		}
		if e.Detected {
			r.DetectedID = string(e.DetectedID)
		}
		rows = append(rows, r)
	}
	return rows
}

// Table 渲染定宽表格（列宽取每列最长值），未识别的编号显示为 "-"。
func Table(plan []domain.PlanEntry) string {
	cells := [][]string{tableHeader}
	for _, r := range Rows(plan) {
		det := r.DetectedID
		if det == "" {
			det = "-"
		}
		cells = append(cells, []string{r.Original, det, r.FinalID, r.Proposed})
	}

	widths := make([]int, len(tableHeader))
	for _, row := range cells {
		for i, c := range row {
			if n := len([]rune(c)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	for ri, row := range cells {
		for i, c := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(row)-1 {
				b.WriteString(c)
				continue
			}
			b.WriteString(c)
			b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(c))))
		}
		b.WriteByte('\n')
		if ri == 0 {
			for i, w := range widths {
				if i > 0 {
					b.WriteString("  ")
				}
				b.WriteString(strings.Repeat("-", w))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Diff 返回“改名前 / 改名后”两份文件清单（各自按名称排序）的 unified diff。
// 没有任何改动时返回空串。
func Diff(plan []domain.PlanEntry) string {
	before := make([]string, 0, len(plan))
	after := make([]string, 0, len(plan))
	for _, e := range plan {
		before = append(before, e.Item.Name+"\n")
		after = append(after, e.TargetName+"\n")
	}
	sort.Strings(before)
	sort.Strings(after)

	u := difflib.UnifiedDiff{
		A:        before,
		B:        after,
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return fmt.Sprintf("--- before\n+++ after\n(diff unavailable: %v)\n", err)
	}
	return s
}

// DuplicateWarnings 把“多个文件识别到同一编号”格式化为提示行（按编号升序）。
func DuplicateWarnings(plan []domain.PlanEntry) []string {
	dups := planner.DuplicateIDs(plan)
	out := make([]string, 0, len(dups))
	for _, id := range planner.SortedIDs(dups) {
		out = append(out, fmt.Sprintf("编号 %s 被多个文件同时识别：%s", id, strings.Join(dups[id], ", ")))
	}
	return out
}
