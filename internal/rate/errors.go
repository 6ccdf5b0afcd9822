package rate

import "errors"

var (
	// ErrRateLimited reports that the attempt budget for the current
	// window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures talking to Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
