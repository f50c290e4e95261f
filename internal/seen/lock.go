package seen

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the store.
var ErrLocked = errors.New("seen store is in use by another purefact process")

// Lock takes an exclusive advisory lock on path+".lock" without blocking.
// The returned func releases it. A scan holds the lock from load to last
// persist so two processes never interleave rewrites of the same store.
func Lock(path string) (func() error, error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, fl.Path())
	}
	return fl.Unlock, nil
}
