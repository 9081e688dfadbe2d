package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewJobID generates a unique queue job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}
