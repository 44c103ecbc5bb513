package instance

import "os"

const defaultID = "worker-0"

// GetID names this worker instance for log correlation. Deployments
// set WORKER_ID per replica; a bare local run gets the default.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return defaultID
}
