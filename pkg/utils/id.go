package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a unique ID
func GenerateID() string {
	return uuid.NewString()
}

// GenerateRunID generates a search run ID with a timestamp prefix
func GenerateRunID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	id := uuid.New()
	return fmt.Sprintf("search-%s-%x", timestamp, id[:4])
}
