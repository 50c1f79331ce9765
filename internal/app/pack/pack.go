// Package pack 是上传模式的执行器：把上传的图片按计划的目标名写入一个 zip。
//
// 上传模式没有真实的目标目录，目标名只在本批次内去重；也没有备份步骤（不改动任何原文件）。
package pack

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/imgseq/internal/app"
	"github.com/John-Robertt/imgseq/internal/app/planner"
	"github.com/John-Robertt/imgseq/internal/domain"
	"github.com/John-Robertt/imgseq/internal/scan"
)

// ArchiveName 是下载文件名。
const ArchiveName = "renamed_images.zip"

// FixedZipTime 让相同输入得到逐字节一致的压缩包（1980-01-01 UTC）。
var FixedZipTime = time.Unix(315532800, 0).UTC()

// ErrNothingToDo 表示本次上传没有任何文件。
var ErrNothingToDo = errors.New("没有上传任何图片")

// Upload 是一次上传中的一个文件。
type Upload struct {
	Name string
	Data []byte
}

// UnsupportedError 表示上传了不在 scan.UploadExts 中的文件。
type UnsupportedError struct {
	Name string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("不支持的文件类型：%q（只接受 %s）", e.Name, strings.Join(scan.UploadExts, ", "))
}

// Plan 为一批上传生成计划，顺序与上传顺序一致。
//
// 空批次返回 ErrNothingToDo；任何一个文件扩展名不被接受时返回 *UnsupportedError，整批不处理。
func Plan(uploads []Upload) ([]domain.PlanEntry, error) {
	if len(uploads) == 0 {
		return nil, ErrNothingToDo
	}

	items := make([]domain.SourceItem, 0, len(uploads))
	for i, u := range uploads {
		name := baseName(u.Name)
		if !scan.HasExt(name, scan.UploadExts) {
			return nil, &UnsupportedError{Name: u.Name}
		}
		it := domain.NewSourceItem(name, "upload:"+strconv.Itoa(i))
		it.Data = u.Data
		items = append(items, it)
	}
	return planner.BuildPlan(items, planner.NewScope()), nil
}

// baseName 只保留文件名部分（部分浏览器会带上客户端路径）。
func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	b := path.Base(name)
	if b == "." || b == "/" {
		return ""
	}
	return b
}

var _ app.Applier = (*ZipApplier)(nil)

// ZipApplier 把计划中每个条目的内容以 TargetName 写入 W（deflate 压缩）。
type ZipApplier struct {
	W io.Writer
}

// Apply 写出完整压缩包。任何写入失败都会让整个压缩包失效，因此直接返回 error。
func (z *ZipApplier) Apply(ctx context.Context, plan []domain.PlanEntry) (domain.ApplyResult, error) {
	out := domain.ApplyResult{
		Entries: make([]domain.EntryResult, 0, len(plan)),
		Log:     make([]string, 0, len(plan)),
	}

	zw := zip.NewWriter(z.W)
	for _, e := range plan {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return out, err
		}
		if err := writeEntry(zw, e.TargetName, e.Item.Data); err != nil {
			_ = zw.Close()
			return out, err
		}
		out.Entries = append(out.Entries, domain.NewEntryResult(e, domain.EntryPacked))
		out.Log = append(out.Log, fmt.Sprintf("PACKED: %s -> %s", e.Item.Name, e.TargetName))
	}
	if err := zw.Close(); err != nil {
		return out, fmt.Errorf("close zip: %w", err)
	}
	return out, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	h := &zip.FileHeader{Name: name, Method: zip.Deflate}
	h.SetMode(0o644)
	h.Modified = FixedZipTime
	w, err := zw.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
