package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/John-Robertt/imgseq/internal/app/run"
	"github.com/John-Robertt/imgseq/internal/config"
	"github.com/John-Robertt/imgseq/internal/domain"
	"github.com/John-Robertt/imgseq/internal/web"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "serve":
		if code := serveCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, ra.CLIArgs)
	if err != nil {
		rr := reportForConfigError(cwdAbs, ra, err)
		emitReport(rr)
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	switch {
	case interactive:
		ui := newProgressUI(progressW)
		ui.showDiff = ra.Diff
		obs = ui
	case ra.Diff:
		obs = diffOnly{w: os.Stderr}
	}

	rr := run.ExecuteWithObserver(context.Background(), eff, obs)

	// apply 的 report.json 已在目录锁内写入 <path>/.imgseq/；dry-run 不落盘。
	emitReport(rr)
	if interactive && eff.Apply && rr.ErrorCode == "" {
		fmt.Fprintf(progressW, "report: %s\n", run.ReportPath(eff.Path))
	}
	if rr.OK() {
		return 0
	}
	return 1
}

type runArgs struct {
	config.CLIArgs
	Diff bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--apply":
			ra.Apply, ra.ApplySet = true, true
		case strings.HasPrefix(a, "--apply="):
			v, err := parseBool("--apply", strings.TrimPrefix(a, "--apply="))
			if err != nil {
				return runArgs{}, err
			}
			ra.Apply, ra.ApplySet = v, true
		case a == "--backup":
			ra.Backup, ra.BackupSet = true, true
		case strings.HasPrefix(a, "--backup="):
			v, err := parseBool("--backup", strings.TrimPrefix(a, "--backup="))
			if err != nil {
				return runArgs{}, err
			}
			ra.Backup, ra.BackupSet = v, true
		case a == "--backup-dir":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--backup-dir 需要一个值")
			}
			i++
			ra.BackupDir, ra.BackupDirSet = args[i], true
		case strings.HasPrefix(a, "--backup-dir="):
			ra.BackupDir, ra.BackupDirSet = strings.TrimPrefix(a, "--backup-dir="), true
		case a == "--diff":
			ra.Diff = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return runArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}
	return ra, nil
}

func parseBool(flag, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", flag, v)
	}
}

func serveCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printServeUsage()
			return 0
		}
	}

	sa, err := parseServeArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printServeUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	sc, err := config.LoadServer(cwd, sa)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	srv := &http.Server{
		Addr:              sc.Listen,
		Handler:           web.NewServer(sc),
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s (max upload %d MB)", sc.Listen, sc.MaxUploadBytes>>20)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Printf("listen: %v", err)
		return 1
	case <-done:
		log.Println("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = srv.Close()
	}
	log.Println("server stopped")
	return 0
}

func parseServeArgs(args []string) (config.ServerArgs, error) {
	sa := config.ServerArgs{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--addr":
			if i+1 >= len(args) {
				return config.ServerArgs{}, fmt.Errorf("--addr 需要一个值")
			}
			i++
			sa.Listen, sa.ListenSet = args[i], true
		case strings.HasPrefix(a, "--addr="):
			sa.Listen, sa.ListenSet = strings.TrimPrefix(a, "--addr="), true
		default:
			return config.ServerArgs{}, fmt.Errorf("未知参数 %q", a)
		}
	}
	if sa.ListenSet && strings.TrimSpace(sa.Listen) == "" {
		return config.ServerArgs{}, fmt.Errorf("--addr 不能为空")
	}
	return sa, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  imgseq run [path] [--apply[=true|false]] [--backup[=true|false]] [--backup-dir NAME] [--diff]
  imgseq serve [--addr ADDR]

命令：
  run    为目录内的图片分配三位序号并原地改名（默认 dry-run）
  serve  启动上传页面：上传图片，下载改名后的 zip

使用 "imgseq run --help" / "imgseq serve --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  imgseq run [path] [--apply[=true|false]] [--backup[=true|false]] [--backup-dir NAME] [--diff]

参数：
  --apply       执行改名（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true
  --backup      改名前把原文件复制到备份目录（默认开启）；--backup=false 关闭
  --backup-dir  备份目录名，位于 path 下（默认 backup_renamer）
  --diff        额外输出改名前后文件清单的 unified diff
  -h, --help    显示帮助
`)
}

func printServeUsage() {
	fmt.Fprint(os.Stdout, `用法：
  imgseq serve [--addr ADDR]

参数：
  --addr      监听地址（默认读配置 listen；其次环境变量 PORT；最终默认 :8080）
  -h, --help  显示帮助
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summaryLine(rr))
		emitProblems(os.Stderr, rr)
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	return fmt.Sprintf("完成：planned=%d renamed=%d skipped=%d failed=%d",
		rr.Summary.Planned, rr.Summary.Renamed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func emitProblems(w io.Writer, rr domain.RunReport) {
	if rr.ErrorCode != "" {
		fmt.Fprintf(w, "%s: %s\n", rr.ErrorCode, rr.ErrorMsg)
	}
	for _, e := range rr.Entries {
		if e.Status != domain.EntryFailed {
			continue
		}
		fmt.Fprintf(w, "%s %s: %s\n", e.Original, e.ErrorCode, e.ErrorMsg)
	}
}

func reportForConfigError(cwdAbs string, ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(ra.ApplySet && ra.Apply),
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  config.Code(err),
		ErrorMsg:   err.Error(),
	}
	if rr.ErrorCode == "" {
		rr.ErrorCode = domain.ErrCodeConfigInvalid
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
