package cache

import "time"

// Stats is a point-in-time view of one cache instance.
type Stats struct {
	Name    string
	Size    int
	MaxSize int
	TTL     time.Duration

	Hits   uint64
	Misses uint64
	// Evictions counts capacity evictions only.
	Evictions uint64
	// Expirations counts entries dropped because of the TTL.
	Expirations uint64
	// Invalid counts entries dropped because Validate rejected them.
	Invalid uint64
}

// HitRatio returns hits/(hits+misses), or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Full reports whether the instance is at capacity.
func (s Stats) Full() bool { return s.Size >= s.MaxSize }
