// Package proc answers questions about local processes: liveness, parentage,
// and names. It exists so the registry's process-verification sweep and the
// window adapters share one probe implementation.
package proc

import (
	"github.com/shirou/gopsutil/v3/process"
)

// Alive reports whether a process with the given pid is running.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Parent returns the parent pid of pid, or 0 when it cannot be determined.
func Parent(pid int) int {
	if pid <= 1 {
		return 0
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ppid, err := p.Ppid()
	if err != nil {
		return 0
	}
	return int(ppid)
}

// Name returns the executable name of pid, or "" when unknown.
func Name(pid int) string {
	if pid <= 0 {
		return ""
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}
	name, err := p.Name()
	if err != nil {
		return ""
	}
	return name
}

// Ancestors returns pid followed by its parents, nearest first, walking at
// most depth levels up. The walk stops at init, on lookup failure, or on a
// self-parented process.
func Ancestors(pid, depth int) []int {
	if pid <= 0 || depth <= 0 {
		return nil
	}
	chain := make([]int, 0, depth)
	cur := pid
	for i := 0; i < depth; i++ {
		chain = append(chain, cur)
		next := Parent(cur)
		if next <= 1 || next == cur {
			break
		}
		cur = next
	}
	return chain
}
