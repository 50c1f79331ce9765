package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/John-Robertt/imgseq/internal/app/planner"
	"github.com/John-Robertt/imgseq/internal/config"
	"github.com/John-Robertt/imgseq/internal/domain"
	"github.com/John-Robertt/imgseq/internal/infra/fsx"
	"github.com/John-Robertt/imgseq/internal/scan"
)

const (
	// ReportDir 是 apply 时 report.json 所在的子目录（位于目标目录下）。
	ReportDir      = ".imgseq"
	ReportFileName = "report.json"
)

// 测试用：模拟写入失败，或在写入时检查目录锁。
var writeReportFunc = fsx.WriteFileAtomicReplace

// ReportPath 返回 root 下 report.json 的路径。
func ReportPath(root string) string {
	return filepath.Join(root, ReportDir, ReportFileName)
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 单个文件的失败只影响该条目；只有目录级问题会让整次运行失败。
func Execute(ctx context.Context, eff config.EffectiveConfig) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Path:      eff.Path,
		DryRun:    !eff.Apply,
		BackupDir: eff.BackupPath(),
		StartedAt: started,
	}
	fail := func(code, msg string) domain.RunReport {
		rr.ErrorCode = code
		rr.ErrorMsg = msg
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	if err := checkFolder(eff.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail(domain.ErrCodeFolderNotFound, err.Error())
		}
		return fail(domain.ErrCodeScanFailed, err.Error())
	}

	// apply：从扫描到执行结束都持有目录独占锁，保证冲突规避基于的目录快照不被他人改动。
	if eff.Apply {
		unlock, err := fsx.LockDir(eff.Path)
		if err != nil {
			if fsx.IsLocked(err) {
				return fail(domain.ErrCodeFolderBusy, err.Error())
			}
			return fail(domain.ErrCodeScanFailed, fmt.Sprintf("加锁失败：%v", err))
		}
		defer unlock()
	}

	scanStarted := time.Now()
	items, scope, err := scanWithScope(eff)
	if err != nil {
		return fail(domain.ErrCodeScanFailed, fmt.Sprintf("扫描失败：%v", err))
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"files": len(items),
		}, time.Since(scanStarted))
	}

	planStarted := time.Now()
	plan := planner.BuildPlan(items, scope)
	if obs != nil {
		var detected int
		for _, e := range plan {
			if e.Detected {
				detected++
			}
		}
		obs.OnPhaseDone("plan", map[string]any{
			"entries":    len(plan),
			"detected":   detected,
			"assigned":   len(plan) - detected,
			"duplicates": len(planner.DuplicateIDs(plan)),
		}, time.Since(planStarted))
		obs.OnPlan(plan)
		obs.OnPhaseDone("exec", map[string]any{
			"total": len(plan),
		}, 0)
	}

	applier := &FolderApplier{
		Dir:       eff.Path,
		DryRun:    !eff.Apply,
		BackupDir: eff.BackupPath(),
	}
	if obs != nil {
		applier.OnEntry = obs.OnEntryDone
	}

	res, err := applier.Apply(ctx, plan)
	rr.Entries = res.Entries
	rr.Log = res.Log
	if err != nil {
		return fail(domain.ErrCodeBackupFailed, err.Error())
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()

	// 仍持有目录锁：落盘的 report 与本次改名结果一致，不会被并发运行覆盖。
	if eff.Apply {
		if err := writeReport(eff.Path, rr); err != nil {
			return fail(domain.ErrCodeReportFailed, fmt.Sprintf("写入 %s 失败：%v", ReportFileName, err))
		}
	}
	return rr
}

func writeReport(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return writeReportFunc(filepath.Join(root, ReportDir), ReportFileName, b)
}

// Preview 只做规划（扫描 + 目标目录快照 + 计划），不产生任何副作用。
func Preview(eff config.EffectiveConfig) ([]domain.PlanEntry, error) {
	if err := checkFolder(eff.Path); err != nil {
		return nil, err
	}
	items, scope, err := scanWithScope(eff)
	if err != nil {
		return nil, err
	}
	return planner.BuildPlan(items, scope), nil
}

func scanWithScope(eff config.EffectiveConfig) ([]domain.SourceItem, *planner.Scope, error) {
	exts := eff.Extensions
	if len(exts) == 0 {
		exts = scan.DefaultFolderExts
	}
	items, err := scan.ScanImages(eff.Path, exts)
	if err != nil {
		return nil, nil, err
	}
	scope, err := planner.ReadFolderScope(eff.Path)
	if err != nil {
		return nil, nil, err
	}
	return items, scope, nil
}

// checkFolder 要求 path 是已存在的目录；不存在时返回的错误满足 errors.Is(err, os.ErrNotExist)。
func checkFolder(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("目录不存在：%q：%w", path, os.ErrNotExist)
		}
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("不是目录：%q：%w", path, os.ErrNotExist)
	}
	return nil
}
