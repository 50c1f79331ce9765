package domain

import "strings"

// SourceItem 描述一张输入图片（来自目录扫描或上传）。
//
// 不变量：
// - Ext 为小写且带前导 '.'（无扩展名时为空串）
// - Stem 是去掉最后一个扩展名后的文件名（保留原大小写）
// - Handle 唯一标识内容来源：目录模式为 clean + absolute 路径，上传模式为 "upload:<index>"
type SourceItem struct {
	Name   string
	Stem   string
	Ext    string
	Handle string

	// Data 仅上传模式使用；目录模式为 nil（内容由 Handle 指向的文件提供）。
	Data []byte
}

// NewSourceItem 从原始文件名构造 SourceItem；构造后不再修改。
func NewSourceItem(name, handle string) SourceItem {
	stem, ext := SplitExt(name)
	return SourceItem{
		Name:   name,
		Stem:   stem,
		Ext:    strings.ToLower(ext),
		Handle: handle,
	}
}

// SplitExt 把文件名拆成 stem 与最后一个扩展名（保留大小写）。
//
// 只有“非开头、非结尾”的 '.' 才开始扩展名：".png" 是没有扩展名的隐藏文件，"a." 也没有扩展名。
func SplitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return name, ""
	}
	return name[:i], name[i:]
}
