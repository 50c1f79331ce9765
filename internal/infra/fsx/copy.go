package fsx

import (
	"io"
	"os"
)

// 测试用：模拟复制失败（权限、磁盘满等）。
var copyFunc = copyFile

// CopyFile 逐字节把 src 复制到 dst（存在则覆盖），并尽量保留权限位与修改时间。
//
// 元数据保留是 best-effort：内容复制成功后，chmod/chtimes 失败不算错误。
func CopyFile(src, dst string) error {
	return copyFunc(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	_ = os.Chmod(dst, fi.Mode().Perm())
	_ = os.Chtimes(dst, fi.ModTime(), fi.ModTime())
	return nil
}
