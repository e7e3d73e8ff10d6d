// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"os"
	"syscall"
	"time"
)

// UsageStat contains process resource usage stats.
type UsageStat struct {
	// Human friendly representations of time duration
	HStime   string
	HUtime   string
	HElapsed string
	// time.Duration is nanoseconds
	Stime   time.Duration
	Utime   time.Duration
	Elapsed time.Duration
	// MaxRss is KB
	MaxRss int64
}

// NewUsageStat will create UsageStat instance.
func NewUsageStat(elapsed time.Duration, rusage *syscall.Rusage) UsageStat {
	s := UsageStat{
		Elapsed:  elapsed,
		HElapsed: elapsed.String(),
	}
	if rusage == nil {
		return s
	}
	s.Stime = time.Duration(syscall.TimevalToNsec(rusage.Stime))
	s.Utime = time.Duration(syscall.TimevalToNsec(rusage.Utime))
	s.HStime = s.Stime.String()
	s.HUtime = s.Utime.String()
	s.MaxRss = rusage.Maxrss
	return s
}

// usageOf extracts usage stats of exited process.
func usageOf(ps *os.ProcessState, elapsed time.Duration) UsageStat {
	if ps == nil {
		return NewUsageStat(elapsed, nil)
	}
	rusage, _ := ps.SysUsage().(*syscall.Rusage)
	return NewUsageStat(elapsed, rusage)
}

// CPUPercent calculates CPU usage in percent.
func (s *UsageStat) CPUPercent() float64 {
	if s.Elapsed == 0 {
		return 0
	}
	return float64(s.Stime+s.Utime) / float64(s.Elapsed) * 100
}
