package cache

import (
	"fmt"

	"github.com/google/uuid"
)

const keyNamespace = "batchlingo"

// JobStatusKey holds the last status written for a job, for cheap polling.
func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("%s:job:%s:status", keyNamespace, jobID)
}

// RateLimitKey counts requests per operator key prefix in the current window.
func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("%s:ratelimit:%s", keyNamespace, keyPrefix)
}
