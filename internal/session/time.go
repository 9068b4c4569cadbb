package session

import "time"

// timeNow is a package-level var to allow deterministic timestamps in tests.
var timeNow = time.Now
