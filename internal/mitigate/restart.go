package mitigate

import (
	"os"
	"syscall"

	"codeberg.org/voss/memguard/internal/errors"
	"codeberg.org/voss/memguard/internal/logger"
)

type execRestarter struct{}

// NewExecRestarter returns a Restarter that re-execs the current binary,
// replacing the bloated process image in place.
func NewExecRestarter() Restarter {
	return execRestarter{}
}

func (execRestarter) Restart() error {
	errFactory := errors.New()

	self, err := os.Executable()
	if err != nil {
		return errFactory.Wrap(errors.ErrRestartFailed, err)
	}

	logger.Warn().Str("executable", self).Msg("Re-executing process")

	if err := syscall.Exec(self, os.Args, os.Environ()); err != nil {
		return errFactory.Wrap(errors.ErrRestartFailed, err)
	}

	return nil
}
