package cache

import "fmt"

func JobStatusKey(jobID string) string {
	return fmt.Sprintf("job:%s:status", jobID)
}

// JobViewKey holds the rendered status view of a finished job.
func JobViewKey(jobID string) string {
	return fmt.Sprintf("job:%s:view", jobID)
}

func RateLimitKey(keyName string) string {
	return fmt.Sprintf("ratelimit:%s", keyName)
}
