package run

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/John-Robertt/imgseq/internal/config"
	"github.com/John-Robertt/imgseq/internal/domain"
	"github.com/John-Robertt/imgseq/internal/infra/fsx"
	"github.com/John-Robertt/imgseq/internal/scan"
)

func TestExecute_DryRun_NoWritesAndIdempotent(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.png"), "b")
	touch(t, filepath.Join(root, "003.jpg"), "3")
	touch(t, filepath.Join(root, "a.png"), "a")
	before := listDir(t, root)

	eff := effective(root, false)
	rr1 := Execute(context.Background(), eff)
	rr2 := Execute(context.Background(), eff)

	want := []string{
		"SKIP (same): 003.jpg",
		"DRY: a.png -> 001.png",
		"DRY: b.png -> 002.png",
	}
	if !reflect.DeepEqual(rr1.Log, want) {
		t.Fatalf("dry-run 日志不符合预期：\ngot=%q\nwant=%q", rr1.Log, want)
	}
	if !reflect.DeepEqual(rr1.Log, rr2.Log) {
		t.Fatalf("两次 dry-run 日志应完全一致：\n1=%q\n2=%q", rr1.Log, rr2.Log)
	}
	if after := listDir(t, root); !reflect.DeepEqual(before, after) {
		t.Fatalf("dry-run 不应改动目录：before=%v after=%v", before, after)
	}

	if !rr1.DryRun || rr1.ErrorCode != "" {
		t.Fatalf("report 不符合预期：%+v", rr1)
	}
	if rr1.Summary.Planned != 2 || rr1.Summary.Skipped != 1 || rr1.Summary.Renamed != 0 {
		t.Fatalf("summary 不符合预期：%+v", rr1.Summary)
	}
}

func TestExecute_Apply_BackupAndRename(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.png"), "b")
	touch(t, filepath.Join(root, "003.jpg"), "3")
	touch(t, filepath.Join(root, "a.png"), "a")

	rr := Execute(context.Background(), effective(root, true))

	backup := filepath.Join(root, config.DefaultBackupDir)
	want := []string{
		"Backup folder: " + backup,
		"SKIP (same): 003.jpg",
		"Backed up: a.png -> a.png",
		"RENAMED: a.png -> 001.png",
		"Backed up: b.png -> b.png",
		"RENAMED: b.png -> 002.png",
	}
	if !reflect.DeepEqual(rr.Log, want) {
		t.Fatalf("apply 日志不符合预期：\ngot=%q\nwant=%q", rr.Log, want)
	}

	got := listDir(t, root)
	wantFiles := []string{ReportDir, "001.png", "002.png", "003.jpg", config.DefaultBackupDir}
	if !reflect.DeepEqual(got, wantFiles) {
		t.Fatalf("目录内容不符合预期：%v", got)
	}
	assertContent(t, filepath.Join(root, "001.png"), "a")
	assertContent(t, filepath.Join(root, "002.png"), "b")
	assertContent(t, filepath.Join(backup, "a.png"), "a")
	assertContent(t, filepath.Join(backup, "b.png"), "b")
	if _, err := os.Stat(filepath.Join(backup, "003.jpg")); !os.IsNotExist(err) {
		t.Fatalf("跳过的文件不应备份，Stat err=%v", err)
	}

	if rr.Summary.Renamed != 2 || rr.Summary.Skipped != 1 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
	if !rr.OK() {
		t.Fatalf("不期望失败：%+v", rr)
	}

	b, err := os.ReadFile(ReportPath(root))
	if err != nil {
		t.Fatalf("apply 应写入 report.json：%v", err)
	}
	var saved domain.RunReport
	if err := json.Unmarshal(b, &saved); err != nil {
		t.Fatalf("report.json 不是合法 JSON：%v", err)
	}
	if saved.DryRun || saved.Summary.Renamed != 2 || len(saved.Entries) != 3 {
		t.Fatalf("report.json 内容不符合预期：%+v", saved)
	}

	// 锁文件在执行结束后释放。
	if _, err := os.Stat(filepath.Join(root, fsx.LockFileName)); !os.IsNotExist(err) {
		t.Fatalf("锁文件应被删除，Stat err=%v", err)
	}

	// 再跑一次 apply：全部已命名，只剩 SKIP。
	rr2 := Execute(context.Background(), effective(root, true))
	if rr2.Summary.Skipped != 3 || rr2.Summary.Renamed != 0 {
		t.Fatalf("第二次 apply 应全部跳过：%+v log=%q", rr2.Summary, rr2.Log)
	}
}

func TestExecute_ExistingTargetGetsSuffix(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "001.png"), "one")
	touch(t, filepath.Join(root, "1_x.png"), "x")
	touch(t, filepath.Join(root, "1_y.png"), "y")

	eff := effective(root, true)
	eff.Backup = false
	rr := Execute(context.Background(), eff)

	want := []string{
		"SKIP (same): 001.png",
		"RENAMED: 1_x.png -> 001_1.png",
		"RENAMED: 1_y.png -> 001_2.png",
	}
	if !reflect.DeepEqual(rr.Log, want) {
		t.Fatalf("日志不符合预期：\ngot=%q\nwant=%q", rr.Log, want)
	}
	assertContent(t, filepath.Join(root, "001.png"), "one")
	assertContent(t, filepath.Join(root, "001_1.png"), "x")
	assertContent(t, filepath.Join(root, "001_2.png"), "y")
}

func TestExecute_ForeignEntryIsAvoided(t *testing.T) {
	root := t.TempDir()
	// 与目标同名的子目录不是计划的一部分：只能避让。
	if err := os.Mkdir(filepath.Join(root, "001.png"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	touch(t, filepath.Join(root, "a.png"), "a")

	rr := Execute(context.Background(), effective(root, false))
	want := []string{"DRY: a.png -> 001_1.png"}
	if !reflect.DeepEqual(rr.Log, want) {
		t.Fatalf("日志不符合预期：%q", rr.Log)
	}
}

func TestExecute_FolderNotFound(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nope")

	rr := Execute(context.Background(), effective(root, true))
	if rr.ErrorCode != domain.ErrCodeFolderNotFound {
		t.Fatalf("期望 %q，实际 %q (%s)", domain.ErrCodeFolderNotFound, rr.ErrorCode, rr.ErrorMsg)
	}
	if len(rr.Entries) != 0 || len(rr.Log) != 0 {
		t.Fatalf("目录不存在时不应生成计划：%+v", rr)
	}
	if rr.OK() {
		t.Fatalf("OK() 应为 false")
	}
}

func TestExecute_FolderBusy(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.png"), "a")

	unlock, err := fsx.LockDir(root)
	if err != nil {
		t.Fatalf("加锁失败：%v", err)
	}
	defer unlock()

	rr := Execute(context.Background(), effective(root, true))
	if rr.ErrorCode != domain.ErrCodeFolderBusy {
		t.Fatalf("期望 %q，实际 %q", domain.ErrCodeFolderBusy, rr.ErrorCode)
	}
	assertContent(t, filepath.Join(root, "a.png"), "a")

	// dry-run 不加锁，不受影响。
	rr2 := Execute(context.Background(), effective(root, false))
	if rr2.ErrorCode != "" || rr2.Summary.Planned != 1 {
		t.Fatalf("dry-run 不应受锁影响：%+v", rr2)
	}
}

func TestExecute_BackupDirConflict(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.png"), "a")
	// 备份目录名被一个普通文件占用。
	touch(t, filepath.Join(root, config.DefaultBackupDir), "not a dir")

	rr := Execute(context.Background(), effective(root, true))
	if rr.ErrorCode != domain.ErrCodeBackupFailed {
		t.Fatalf("期望 %q，实际 %q", domain.ErrCodeBackupFailed, rr.ErrorCode)
	}
	assertContent(t, filepath.Join(root, "a.png"), "a")
}

func TestExecute_ReportWrittenWhileLocked(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.png"), "a")

	var locked bool
	old := writeReportFunc
	writeReportFunc = func(dir, name string, data []byte) error {
		_, err := os.Stat(filepath.Join(root, fsx.LockFileName))
		locked = err == nil
		return old(dir, name, data)
	}
	defer func() { writeReportFunc = old }()

	rr := Execute(context.Background(), effective(root, true))
	if !rr.OK() {
		t.Fatalf("不期望失败：%+v", rr)
	}
	if !locked {
		t.Fatalf("写 report.json 时应仍持有目录锁")
	}
	if _, err := os.Stat(filepath.Join(root, fsx.LockFileName)); !os.IsNotExist(err) {
		t.Fatalf("锁文件应在写完 report 后删除，Stat err=%v", err)
	}
}

func TestExecute_ReportWriteFailure(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.png"), "a")

	old := writeReportFunc
	writeReportFunc = func(string, string, []byte) error { return errors.New("disk full") }
	defer func() { writeReportFunc = old }()

	rr := Execute(context.Background(), effective(root, true))
	if rr.ErrorCode != domain.ErrCodeReportFailed {
		t.Fatalf("期望 %q，实际 %q (%s)", domain.ErrCodeReportFailed, rr.ErrorCode, rr.ErrorMsg)
	}
	if rr.Summary.Renamed != 1 || len(rr.Entries) != 1 {
		t.Fatalf("写 report 失败时应保留已完成的条目：%+v", rr)
	}
	assertContent(t, filepath.Join(root, "001.png"), "a")

	// dry-run 不写 report。
	rr2 := Execute(context.Background(), effective(root, false))
	if rr2.ErrorCode != "" {
		t.Fatalf("dry-run 不应写 report：%+v", rr2)
	}
}

func TestExecute_EmptyFolder(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "notes.txt"), "n")

	rr := Execute(context.Background(), effective(root, true))
	if rr.ErrorCode != "" || len(rr.Entries) != 0 {
		t.Fatalf("空目录应得到空计划：%+v", rr)
	}
}

func TestPreview_NoSideEffects(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "x.png"), "x")
	before := listDir(t, root)

	plan, err := Preview(effective(root, true))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(plan) != 1 || plan[0].TargetName != "001.png" {
		t.Fatalf("计划不符合预期：%+v", plan)
	}
	if after := listDir(t, root); !reflect.DeepEqual(before, after) {
		t.Fatalf("Preview 不应改动目录：%v", after)
	}

	if _, err := Preview(effective(filepath.Join(root, "nope"), false)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("目录不存在应返回 not-exist 错误，实际：%v", err)
	}
}

type recordObserver struct {
	startCalls int
	phases     []string
	planned    []string
	entries    []string
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) { o.startCalls++ }

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnPlan(plan []domain.PlanEntry) {
	for _, e := range plan {
		o.planned = append(o.planned, e.TargetName)
	}
}

func (o *recordObserver) OnEntryDone(idx, total int, res domain.EntryResult, lines []string) {
	o.entries = append(o.entries, res.Original)
}

func TestExecuteWithObserver_EmitsPhaseAndEntryEvents(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.png"), "b")
	touch(t, filepath.Join(root, "a.png"), "a")

	obs := &recordObserver{}
	_ = ExecuteWithObserver(context.Background(), effective(root, false), obs)

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	if !reflect.DeepEqual(obs.phases, []string{"scan", "plan", "exec"}) {
		t.Fatalf("阶段事件不符合预期：%v", obs.phases)
	}
	if !reflect.DeepEqual(obs.planned, []string{"001.png", "002.png"}) {
		t.Fatalf("计划事件不符合预期：%v", obs.planned)
	}
	if !reflect.DeepEqual(obs.entries, []string{"a.png", "b.png"}) {
		t.Fatalf("条目事件不符合预期：%v", obs.entries)
	}
}

func TestExecuteWithObserver_NilObserver_SameResultAsExecute(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.png"), "a")

	cfg := effective(root, false)
	a := Execute(context.Background(), cfg)
	b := ExecuteWithObserver(context.Background(), cfg, nil)

	a.StartedAt, a.FinishedAt = time.Time{}, time.Time{}
	b.StartedAt, b.FinishedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("nil observer 不应改变结果：\nExecute=%+v\nWithObs=%+v", a, b)
	}
}

func effective(root string, apply bool) config.EffectiveConfig {
	return config.EffectiveConfig{
		Path:       root,
		Apply:      apply,
		Backup:     true,
		BackupDir:  config.DefaultBackupDir,
		Extensions: scan.DefaultFolderExts,
	}
}

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func assertContent(t *testing.T, path, want string) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取 %q 失败：%v", path, err)
	}
	if string(b) != want {
		t.Fatalf("%q 内容不一致：got=%q want=%q", path, string(b), want)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}
