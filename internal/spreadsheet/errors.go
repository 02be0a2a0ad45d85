package spreadsheet

import (
	"errors"
	"io/fs"
	"strings"
	"syscall"
)

// ErrFileLocked is reported for a destination whose artifact is held open by
// another program. It is a per-destination failure; other destinations and
// lists carry on.
var ErrFileLocked = errors.New("spreadsheet: file locked by another process")

// ErrNoSheet is returned when a workbook has no worksheet to read.
var ErrNoSheet = errors.New("spreadsheet: workbook has no sheets")

// lockMessages are the Windows renderings of a sharing violation that do not
// surface as a typed errno on every Go version.
var lockMessages = []string{
	"being used by another process",
	"sharing violation",
	"locked a portion of the file",
}

// isLockError reports whether err looks like another program holding the file.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range lockMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
