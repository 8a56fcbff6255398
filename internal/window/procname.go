package window

import (
	"github.com/shirou/gopsutil/v3/process"
)

// NameResolver maps a process id to a short application name
type NameResolver interface {
	AppName(pid int) string
}

// ProcNames resolves names from the process table
type ProcNames struct{}

// AppName returns the process name, or "" if the process is gone
func (ProcNames) AppName(pid int) string {
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
