package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/imgseq/internal/domain"
)

// DefaultFolderExts 是目录模式识别的图片扩展名。
var DefaultFolderExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".tiff"}

// UploadExts 是上传模式在入口处接受的扩展名。
var UploadExts = []string{".png", ".jpg", ".jpeg"}

// ScanImages 列出 dir 下（不递归）扩展名在 exts 中的普通文件。
//
// 规则：
// - 扩展名比较不区分大小写
// - 符号链接按目标判断是否为普通文件
// - 输出按小写文件名排序，相同时按原文件名排序（保证稳定）
// - dir 不存在时返回的错误满足 os.IsNotExist / errors.Is(err, fs.ErrNotExist)
func ScanImages(dir string, exts []string) ([]domain.SourceItem, error) {
	dir = filepath.Clean(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	items := make([]domain.SourceItem, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !HasExt(name, exts) {
			continue
		}

		abs := filepath.Join(dir, name)
		if e.Type()&os.ModeSymlink != 0 {
			fi, err := os.Stat(abs)
			if err != nil || !fi.Mode().IsRegular() {
				// 断开的链接或指向目录：不算图片文件。
				continue
			}
		} else if !e.Type().IsRegular() {
			continue
		}

		items = append(items, domain.NewSourceItem(name, abs))
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := strings.ToLower(items[i].Name), strings.ToLower(items[j].Name)
		if a != b {
			return a < b
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// HasExt 判断 name 的扩展名（不区分大小写）是否在 exts 中。
//
// 扩展名按 domain.SplitExt 切分：".png" 这类隐藏文件没有扩展名，不会被当成图片。
func HasExt(name string, exts []string) bool {
	_, ext := domain.SplitExt(name)
	ext = strings.ToLower(ext)
	if ext == "" {
		return false
	}
	for _, x := range exts {
		if ext == x {
			return true
		}
	}
	return false
}

// NormalizeExts 把配置中的扩展名规范化为小写、带前导 '.'、去重且保持顺序。
func NormalizeExts(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		x := strings.ToLower(strings.TrimSpace(raw))
		if x == "" {
			continue
		}
		if !strings.HasPrefix(x, ".") {
			x = "." + x
		}
		if x == "." || strings.ContainsAny(x[1:], `./\`) {
			return nil, fmt.Errorf("非法扩展名：%q", raw)
		}
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("扩展名列表不能为空")
	}
	return out, nil
}
