package planner

import (
	"fmt"
	"os"
	"sort"
)

// Scope 是目标范围（一个目录或一个压缩包）内“已被占用”的文件名集合。
//
// 每个名字记录其所有者：目录里原有的条目属于外部所有者（空串），
// 计划中的源文件可以通过 ReserveFor 认领自己的当前名字。
// Claim 时只有“空闲”或“已属于同一所有者”的名字可用，
// 这样已经命名正确的文件不会给自己加后缀，其他文件也不会覆盖它。
//
// Scope 只服务于一次规划调用，不做并发保护。
type Scope struct {
	owners map[string]string
}

func NewScope() *Scope {
	return &Scope{owners: make(map[string]string, 64)}
}

// ReadFolderScope 读取 dir 的现有条目（文件与子目录都算），全部视为外部占用。
func ReadFolderScope(dir string) (*Scope, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	s := NewScope()
	for _, e := range entries {
		s.Reserve(e.Name())
	}
	return s, nil
}

// Reserve 把 name 标记为外部占用。
func (s *Scope) Reserve(name string) {
	s.owners[name] = ""
}

// ReserveFor 把 name 的所有权交给 owner（覆盖原有所有者）。
func (s *Scope) ReserveFor(name, owner string) {
	s.owners[name] = owner
}

func (s *Scope) Has(name string) bool {
	_, ok := s.owners[name]
	return ok
}

// Names 返回已占用名字（排序，便于测试与输出稳定）。
func (s *Scope) Names() []string {
	out := make([]string, 0, len(s.owners))
	for n := range s.owners {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Claim 为 owner 分配 base+ext；若已被他人占用，依次尝试 base_1+ext、base_2+ext ……
// 第一个可用的候选胜出（无上限），并登记到 scope 中。
func (s *Scope) Claim(owner, base, ext string) string {
	name := base + ext
	if s.available(name, owner) {
		s.owners[name] = owner
		return name
	}
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s_%d%s", base, n, ext)
		if s.available(cand, owner) {
			s.owners[cand] = owner
			return cand
		}
	}
}

func (s *Scope) available(name, owner string) bool {
	cur, ok := s.owners[name]
	if !ok {
		return true
	}
	return owner != "" && cur == owner
}
