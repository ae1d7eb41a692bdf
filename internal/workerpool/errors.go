package workerpool

import "errors"

var errPoolStopped = errors.New("workerpool: pool has been stopped")
