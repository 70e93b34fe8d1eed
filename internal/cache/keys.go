package cache

import "fmt"

func SnapshotKey(jobID string) string {
	return fmt.Sprintf("analysis:snapshot:%s", jobID)
}

func SubmissionKey(jobID string) string {
	return fmt.Sprintf("analysis:submission:%s", jobID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
