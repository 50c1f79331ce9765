// Package app 定义规划结果的“执行”能力。
//
// 规划（scan -> detect -> plan）是纯计算；执行是唯一产生副作用的一步。
// 两种执行器是同一能力的不同适配：
// - run.FolderApplier：原地重命名（可选备份、可 dry-run）
// - pack.ZipApplier：把上传内容按目标名写入压缩包
package app

import (
	"context"

	"github.com/John-Robertt/imgseq/internal/domain"
)

// Applier 按计划顺序执行一份计划。
//
// 约束：
// - 单条失败写入 ApplyResult（Status=failed + 日志行），不影响后续条目，不回滚已完成条目
// - 只有让整批无法开始/无法继续的问题才返回 error
type Applier interface {
	Apply(ctx context.Context, plan []domain.PlanEntry) (domain.ApplyResult, error)
}
