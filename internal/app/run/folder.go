package run

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/John-Robertt/imgseq/internal/app"
	"github.com/John-Robertt/imgseq/internal/domain"
	"github.com/John-Robertt/imgseq/internal/infra/fsx"
)

var _ app.Applier = (*FolderApplier)(nil)

// FolderApplier 在 Dir 内按计划原地重命名。
//
// 每条计划按顺序处理，结果只有四种：
// - 目标路径与当前路径相同：SKIP (same)，不执行 rename
// - DryRun：DRY，只记录意图
// - 成功：（可选 Backed up）+ RENAMED
// - 失败：ERROR renaming，继续处理后续条目，不回滚
type FolderApplier struct {
	Dir    string
	DryRun bool

	// BackupDir 为空表示不备份；否则为备份目录的绝对路径。
	BackupDir string

	// OnEntry 在每条计划处理完后调用（可为 nil），lines 是该条目产生的日志行。
	OnEntry func(idx, total int, res domain.EntryResult, lines []string)
}

// Apply 执行计划。只有备份目录无法创建时返回 error（此时没有任何文件被改动）。
func (a *FolderApplier) Apply(ctx context.Context, plan []domain.PlanEntry) (domain.ApplyResult, error) {
	out := domain.ApplyResult{
		Entries: make([]domain.EntryResult, 0, len(plan)),
		Log:     make([]string, 0, len(plan)+1),
	}

	if a.BackupDir != "" && !a.DryRun {
		if err := fsx.EnsureDir(a.BackupDir); err != nil {
			return out, fmt.Errorf("创建备份目录失败：%w", err)
		}
		out.Log = append(out.Log, "Backup folder: "+a.BackupDir)
	}

	for i, e := range plan {
		res, lines := a.applyOne(e)
		out.Entries = append(out.Entries, res)
		out.Log = append(out.Log, lines...)
		if a.OnEntry != nil {
			a.OnEntry(i+1, len(plan), res, lines)
		}
	}
	return out, nil
}

func (a *FolderApplier) applyOne(e domain.PlanEntry) (domain.EntryResult, []string) {
	src := e.Item.Handle
	if src == "" {
		src = filepath.Join(a.Dir, e.Item.Name)
	}
	dst := filepath.Join(filepath.Dir(src), e.TargetName)
	oldName, newName := e.Item.Name, e.TargetName

	if samePath(src, dst) {
		return domain.NewEntryResult(e, domain.EntrySkipped), []string{"SKIP (same): " + oldName}
	}
	if a.DryRun {
		return domain.NewEntryResult(e, domain.EntryPlanned), []string{fmt.Sprintf("DRY: %s -> %s", oldName, newName)}
	}

	var lines []string
	if a.BackupDir != "" {
		bpath := filepath.Join(a.BackupDir, oldName)
		if err := fsx.CopyFile(src, bpath); err != nil {
			return failed(e, domain.ErrCodeBackupFailed, err), append(lines, errorLine(oldName, newName, err))
		}
		lines = append(lines, fmt.Sprintf("Backed up: %s -> %s", oldName, filepath.Base(bpath)))
	}

	if err := fsx.Rename(src, dst); err != nil {
		return failed(e, domain.ErrCodeRenameFailed, err), append(lines, errorLine(oldName, newName, err))
	}
	lines = append(lines, fmt.Sprintf("RENAMED: %s -> %s", oldName, newName))
	return domain.NewEntryResult(e, domain.EntryRenamed), lines
}

func failed(e domain.PlanEntry, code string, err error) domain.EntryResult {
	res := domain.NewEntryResult(e, domain.EntryFailed)
	res.ErrorCode = code
	res.ErrorMsg = err.Error()
	return res
}

func errorLine(oldName, newName string, err error) string {
	return fmt.Sprintf("ERROR renaming %s -> %s : %v", oldName, newName, err)
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
