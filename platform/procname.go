package platform

import (
	"errors"
	"log/slog"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/quietfocus/quietfocus/internal/procid"
)

// nameStrategy is one tier of the process-name resolution chain. Tiers
// are tried in order; the first success wins.
type nameStrategy struct {
	name    string
	resolve func(pid uint32) (string, error)
}

// resolver resolves pids to executable names through an ordered strategy
// chain. Ordinary user processes resolve on the first tier; protected or
// system processes need the reduced-privilege tiers.
type resolver struct {
	strategies []nameStrategy
	logger     *slog.Logger
}

func newResolver(logger *slog.Logger) *resolver {
	if logger == nil {
		logger = slog.Default()
	}
	strategies := append(osNameStrategies(), nameStrategy{
		name:    "gopsutil",
		resolve: gopsutilName,
	})
	return &resolver{strategies: strategies, logger: logger}
}

// Resolve returns the executable name for pid, normalizing system audio
// services to the System Sounds pseudo-process. It never fails: when all
// tiers are exhausted it returns a "Process <pid>" placeholder.
func (r *resolver) Resolve(pid uint32) string {
	if pid == 0 {
		return procid.SystemSounds
	}
	for _, s := range r.strategies {
		name, err := s.resolve(pid)
		if err != nil || name == "" {
			continue
		}
		if procid.IsSystemService(name) {
			return procid.SystemSounds
		}
		return name
	}
	r.logger.Debug("process name unresolved", "pid", pid)
	return resolvePlaceholder(pid)
}

func resolvePlaceholder(pid uint32) string {
	return procid.Placeholder(pid)
}

var errNoProcess = errors.New("no such process")

// gopsutilName is the last real tier: it reads the name through gopsutil,
// which on Windows walks the process snapshot and so works for processes
// the direct handle-based lookups cannot open.
func gopsutilName(pid uint32) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", errNoProcess
	}
	return p.Name()
}
