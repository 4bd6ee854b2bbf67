// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrInvalidPidFile is returned for pid files that do not hold a positive integer.
var ErrInvalidPidFile = errors.New("invalid pid file")

// ProcessInfo describes the process named by a pid file.
type ProcessInfo struct {
	PID        int32
	Running    bool
	Name       string
	Cmdline    string
	RSS        uint64
	CPUPercent float64
	Started    time.Time
}

// ReadPidFile returns the pid stored in path.
func ReadPidFile(path string) (int32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPidFile, path)
	}
	return int32(pid), nil
}

// Inspect collects process details for pid. A pid that is not running is
// reported with Running false and no error.
func Inspect(ctx context.Context, pid int32) (*ProcessInfo, error) {
	info := &ProcessInfo{PID: pid}
	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("checking pid %d: %w", pid, err)
	}
	if !exists {
		return info, nil
	}

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return info, nil
		}
		return nil, fmt.Errorf("inspecting pid %d: %w", pid, err)
	}
	info.Running = true

	// Details are best effort; permissions may hide them for foreign processes.
	if name, err := p.NameWithContext(ctx); err == nil {
		info.Name = name
	}
	if cmd, err := p.CmdlineWithContext(ctx); err == nil {
		info.Cmdline = cmd
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSS = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		info.Started = time.UnixMilli(ms)
	}
	return info, nil
}
