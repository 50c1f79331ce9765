package planner

import (
	"sort"
	"strings"

	"github.com/John-Robertt/imgseq/internal/domain"
	"github.com/John-Robertt/imgseq/internal/ident"
)

// FormatID 把编号格式化为至少三位、左侧补零的十进制串；>= 1000 时不截断。
func FormatID(id domain.ID) string {
	s := string(id)
	if len(s) < 3 {
		s = strings.Repeat("0", 3-len(s)) + s
	}
	return s
}

// BuildPlan 为 items 生成重命名计划（只计算，不做任何写入/移动），输出保持输入顺序。
//
// 步骤：
// 1) 对每个 stem 做编号识别，识别到的编号进入 used 集合
// 2) 游标 = 不在 used 中的最小正整数
// 3) 按输入顺序：识别到编号的沿用；否则取游标值，加入 used，游标前进到下一个未使用的正整数
// 4) 识别到相同编号的文件保留相同编号，只在文件名层面用后缀区分
// 5) 目标名 = FormatID(finalID) + ext，经 scope.Claim 去重
//
// scope 为 nil 时使用空 scope（只在本批次内去重）。
// 在 Claim 之前，每个源文件先认领自己的当前名字，保证“已命名正确”的文件原样保留。
func BuildPlan(items []domain.SourceItem, scope *Scope) []domain.PlanEntry {
	if scope == nil {
		scope = NewScope()
	}

	used := make(map[domain.ID]struct{}, len(items))
	entries := make([]domain.PlanEntry, 0, len(items))
	for _, it := range items {
		e := domain.PlanEntry{Item: it}
		if id, ok := ident.Detect(it.Stem); ok {
			e.DetectedID = id
			e.Detected = true
			used[id] = struct{}{}
		}
		entries = append(entries, e)
	}

	next := nextUnused(used, 1)
	for i := range entries {
		if entries[i].Detected {
			entries[i].FinalID = entries[i].DetectedID
			continue
		}
		entries[i].FinalID = domain.IDFromInt(next)
		used[entries[i].FinalID] = struct{}{}
		next = nextUnused(used, next)
	}

	for _, e := range entries {
		if scope.Has(e.Item.Name) && e.Item.Handle != "" {
			scope.ReserveFor(e.Item.Name, e.Item.Handle)
		}
	}
	for i := range entries {
		e := &entries[i]
		e.TargetName = scope.Claim(e.Item.Handle, FormatID(e.FinalID), e.Item.Ext)
	}
	return entries
}

func nextUnused(used map[domain.ID]struct{}, from int) int {
	n := from
	for {
		if _, ok := used[domain.IDFromInt(n)]; !ok {
			return n
		}
		n++
	}
}

// DuplicateIDs 返回“多个文件识别到同一编号”的情况：编号 -> 原文件名（计划顺序）。
// 规划策略不因此改变，只用于在预览中提醒操作者。
func DuplicateIDs(plan []domain.PlanEntry) map[domain.ID][]string {
	byID := make(map[domain.ID][]string)
	for _, e := range plan {
		if !e.Detected {
			continue
		}
		byID[e.DetectedID] = append(byID[e.DetectedID], e.Item.Name)
	}
	for id, names := range byID {
		if len(names) < 2 {
			delete(byID, id)
		}
	}
	return byID
}

// SortedIDs 让上层按编号稳定输出 DuplicateIDs 的结果（而不是依赖 map 遍历顺序）。
func SortedIDs(m map[domain.ID][]string) []domain.ID {
	ids := make([]domain.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}
