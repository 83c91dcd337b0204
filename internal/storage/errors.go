package storage

import "errors"

// ErrNoRows is returned by UpdateRecord when the target row is gone.
var ErrNoRows = errors.New("storage: no rows affected")
