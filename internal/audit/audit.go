package audit

import (
	"context"
	"time"
)

// Record is one append-only row per edit request, written after inference settles.
type Record struct {
	ID               string    `dynamodbav:"id" json:"id"`
	Timestamp        time.Time `dynamodbav:"timestamp" json:"timestamp"`
	ModelID          string    `dynamodbav:"model_id" json:"model_id"`
	Prompt           string    `dynamodbav:"prompt" json:"prompt"`
	Mode             string    `dynamodbav:"mode" json:"mode"`
	ImageSizeBytes   int64     `dynamodbav:"image_size_bytes" json:"image_size_bytes"`
	MaskSizeBytes    int64     `dynamodbav:"mask_size_bytes" json:"mask_size_bytes"`
	OutputSizeBytes  int64     `dynamodbav:"output_size_bytes" json:"output_size_bytes"`
	GenerationTimeMS int64     `dynamodbav:"generation_time_ms" json:"generation_time_ms"`
	Success          bool      `dynamodbav:"success" json:"success"`
	ErrorMessage     string    `dynamodbav:"error_message,omitempty" json:"error_message,omitempty"`
}

type Store interface {
	Put(context.Context, Record) error
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
