package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/imgseq/internal/scan"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 imgseq.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// FileName 是配置文件名（位于目标目录或 cwd）。
	FileName = "imgseq.json"

	// DefaultBackupDir 是备份目录名（位于目标目录下）。
	DefaultBackupDir = "backup_renamer"
	// DefaultListen 是 serve 的默认监听地址。
	DefaultListen = ":8080"
	// DefaultMaxUploadMB 是单次上传的默认体积上限。
	DefaultMaxUploadMB = 64
)

// CLIArgs 只包含 run 子命令暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Apply    bool
	ApplySet bool

	Backup    bool
	BackupSet bool

	BackupDir    string
	BackupDirSet bool
}

// FileConfig 对应 imgseq.json 的解析结构。
type FileConfig struct {
	Path        string   `json:"path"`
	Apply       *bool    `json:"apply"`
	Backup      *bool    `json:"backup"`
	BackupDir   string   `json:"backup_dir"`
	Extensions  []string `json:"extensions"`
	Listen      string   `json:"listen"`
	MaxUploadMB int      `json:"max_upload_mb"`
}

// EffectiveConfig 是 run 合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string

	// Apply=false 即 dry-run：只输出预览日志，不改动任何文件。
	Apply bool

	Backup bool
	// BackupDir 是目录名（单个路径段），实际位置为 <Path>/<BackupDir>。
	BackupDir string

	Extensions []string
}

// BackupPath 返回备份目录的绝对路径；未开启备份时返回空串。
func (e EffectiveConfig) BackupPath() string {
	if !e.Backup {
		return ""
	}
	return filepath.Join(e.Path, e.BackupDir)
}

// ServerArgs 是 serve 子命令的入口。
type ServerArgs struct {
	Listen    string
	ListenSet bool
}

// ServerConfig 是 serve 的最终配置。
type ServerConfig struct {
	Listen         string
	MaxUploadBytes int64
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/imgseq.json（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/imgseq.json（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - apply：CLI --apply/--apply=false > config > 默认 false
// - backup：CLI --backup/--backup=false > config > 默认 true
// - backup_dir：CLI --backup-dir > config > 默认 backup_renamer
// - extensions：仅由 config 控制（CLI 不暴露）
//
// 注意：这里不检查目标目录是否存在；“目录不存在”属于运行期错误（folder_not_found）。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/imgseq.json。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	// CLI 没给 path：必须读取 <cwd>/imgseq.json，且其中必须包含 path。
	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	// backup：CLI > config > 默认 true
	backup := true
	if cli.BackupSet {
		backup = cli.Backup
	} else if fc.Backup != nil {
		backup = *fc.Backup
	}

	backupDir := DefaultBackupDir
	if cli.BackupDirSet {
		backupDir = cli.BackupDir
	} else if strings.TrimSpace(fc.BackupDir) != "" {
		backupDir = fc.BackupDir
	}
	backupDir = strings.TrimSpace(backupDir)
	if backup {
		if err := validateBackupDir(backupDir); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	exts := scan.DefaultFolderExts
	if len(fc.Extensions) > 0 {
		x, err := scan.NormalizeExts(fc.Extensions)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("extensions 无效：%w", err)}
		}
		exts = x
	}

	return EffectiveConfig{
		Path:       absPath,
		Apply:      apply,
		Backup:     backup,
		BackupDir:  backupDir,
		Extensions: append([]string(nil), exts...),
	}, nil
}

// validateBackupDir 要求备份目录名是单个路径段：备份只会落在目标目录内部。
func validateBackupDir(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("开启备份时 backup_dir 不能为空")
	case name == "." || name == "..":
		return fmt.Errorf("backup_dir 不能是 %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("backup_dir 只能是目录名，不能包含路径分隔符：%q", name)
	}
	return nil
}

// LoadServer 读取 serve 的配置：<cwd>/imgseq.json 可选。
//
// 覆盖优先级：
// - listen：CLI --addr > config > 环境变量 PORT（":"+PORT）> 默认 :8080
// - max_upload_mb：仅由 config 控制；范围 [1, 1024]，超出截断
func LoadServer(cwd string, cli ServerArgs) (ServerConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return ServerConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return ServerConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	listen := DefaultListen
	switch {
	case cli.ListenSet:
		listen = strings.TrimSpace(cli.Listen)
	case strings.TrimSpace(fc.Listen) != "":
		listen = strings.TrimSpace(fc.Listen)
	case os.Getenv("PORT") != "":
		listen = ":" + os.Getenv("PORT")
	}
	if listen == "" {
		return ServerConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("listen 不能为空")}
	}

	mb := fc.MaxUploadMB
	if mb == 0 {
		mb = DefaultMaxUploadMB
	}
	if mb < 1 {
		mb = 1
	}
	if mb > 1024 {
		mb = 1024
	}

	return ServerConfig{
		Listen:         listen,
		MaxUploadBytes: int64(mb) << 20,
	}, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
