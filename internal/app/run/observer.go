package run

import (
	"time"

	"github.com/John-Robertt/imgseq/internal/config"
	"github.com/John-Robertt/imgseq/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件全部在调用 ExecuteWithObserver 的 goroutine 上按顺序发出。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（scan / plan / exec）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnPlan 在计划生成后、执行前调用一次（只读，不得修改 plan）。
	OnPlan(plan []domain.PlanEntry)
	// OnEntryDone 在每条计划执行完后调用；lines 是该条目产生的动作日志。
	OnEntryDone(idx, total int, res domain.EntryResult, lines []string)
}
