// Package cpuprofile starts and stops profiling of the CPU usage.
package cpuprofile

import (
	"os"
	"runtime/pprof"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// Start the CPU profiling and write the results to the file.
// The returned stop function must be called before the process exits,
// otherwise the profile is incomplete.
func Start(path string, logger log.Logger) (stop func(), err error) {
	f, err := os.Create(path) //nolint:forbidigo
	if err != nil {
		return nil, errors.Errorf(`cannot create the profile file "%s": %w`, path, err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, errors.Errorf(`cannot start the cpu profiling: %w`, err)
	}

	logger.Infof(`cpu profiling started, the profile file "%s"`, path)
	return func() {
		pprof.StopCPUProfile()
		if err := f.Close(); err != nil {
			logger.Warnf(`cannot close the profile file "%s": %s`, path, err)
		}
		logger.Info("cpu profiling stopped")
	}, nil
}
