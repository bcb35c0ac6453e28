//go:build !unix

package state

import (
	"os"
)

// advisory locking is not available, invocations are not serialized
func tryLock(*os.File) error {
	return nil
}

func unlock(*os.File) error {
	return nil
}
