//go:build windows

package espeak

import (
	"errors"
	"os"
)

var errPauseUnsupported = errors.New("pausing espeak is not supported on windows")

func suspend(*os.Process) error { return errPauseUnsupported }

func resume(*os.Process) error { return errPauseUnsupported }
