package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/imgseq/internal/app/run"
	"github.com/John-Robertt/imgseq/internal/config"
	"github.com/John-Robertt/imgseq/internal/domain"
	"github.com/John-Robertt/imgseq/internal/preview"
)

var (
	_ run.Observer = (*progressUI)(nil)
	_ run.Observer = diffOnly{}
)

// progressUI 是交互终端的进度输出。
//
// 所有内容写到 w（stderr 或 fallback 的 stdout），不污染 stdout 的 JSON 输出契约；
// run 层只发事件，这里决定如何展示。
type progressUI struct {
	w io.Writer

	// showDiff 为 true 时在计划表之后输出 unified diff。
	showDiff bool

	mu        sync.Mutex
	startedAt time.Time

	total int
	fail  int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (只预览，不改动任何文件)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] imgseq run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	if eff.Backup {
		fmt.Fprintf(p.w, "  backup: on (%s)\n", eff.BackupPath())
	} else {
		fmt.Fprintln(p.w, "  backup: off")
	}
	fmt.Fprintf(p.w, "  extensions: %s\n", formatStringListJSON(eff.Extensions))
	if eff.Apply {
		fmt.Fprintln(p.w, "输出:")
		fmt.Fprintf(p.w, "  report: %s\n", run.ReportPath(eff.Path))
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "plan":
		fmt.Fprintf(p.w, "规划: entries=%d detected=%d assigned=%d duplicates=%d (%s)\n",
			intField(fields, "entries"),
			intField(fields, "detected"),
			intField(fields, "assigned"),
			intField(fields, "duplicates"),
			formatShortDuration(dur),
		)
	case "exec":
		p.total = intField(fields, "total")
		fmt.Fprintf(p.w, "执行: total=%d\n", p.total)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnPlan(plan []domain.PlanEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(plan) == 0 {
		fmt.Fprintln(p.w, "\n(没有找到图片)")
		fmt.Fprintln(p.w)
		return
	}
	fmt.Fprintln(p.w)
	fmt.Fprint(p.w, preview.Table(plan))
	for _, w := range preview.DuplicateWarnings(plan) {
		fmt.Fprintf(p.w, "注意: %s\n", w)
	}
	if p.showDiff {
		if d := preview.Diff(plan); d != "" {
			fmt.Fprintln(p.w)
			fmt.Fprint(p.w, d)
		}
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnEntryDone(idx, total int, res domain.EntryResult, lines []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res.Status == domain.EntryFailed {
		p.fail++
	}
	for _, l := range lines {
		fmt.Fprintf(p.w, "[%d/%d] %s\n", idx, total, truncate(l, 240))
	}
	if idx == total {
		fmt.Fprintf(p.w, "\n耗时 %s，失败 %d 条\n", formatElapsed(time.Since(p.startedAt)), p.fail)
	}
}

// diffOnly 用于非交互场景下的 --diff：只把 diff 写到 w（stderr），其余事件忽略。
type diffOnly struct {
	w io.Writer
}

func (diffOnly) OnStart(config.EffectiveConfig)                     {}
func (diffOnly) OnPhaseDone(string, map[string]any, time.Duration)  {}
func (diffOnly) OnEntryDone(int, int, domain.EntryResult, []string) {}

func (d diffOnly) OnPlan(plan []domain.PlanEntry) {
	fmt.Fprint(d.w, preview.Diff(plan))
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
