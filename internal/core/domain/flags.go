package domain

import "hash/fnv"

// AssignFlag decides a percentage rollout deterministically from the flag
// name and a per-request subject (session id, page id). There is no mutable
// global flag state; callers pass the configured percentage in.
func AssignFlag(flag, subject string, rolloutPercent int) bool {
	if rolloutPercent >= 100 {
		return true
	}
	if rolloutPercent <= 0 {
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(flag))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(subject))
	return int(h.Sum32()%100) < rolloutPercent
}
