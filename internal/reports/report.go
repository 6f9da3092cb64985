// Package reports defines archived narrative reports and the store contract
// the persistence backends implement.
package reports

import (
	"context"
	"sort"
	"time"
)

// Status tracks a report through the archive worker.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Report is the archived metadata for one generated narrative. The narrative
// text itself lives in the blob store under ArtifactKey.
type Report struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Keys        []string   `json:"zips"`
	Instruction string     `json:"user_prompt,omitempty"`
	Temperature float64    `json:"temperature"`
	Provider    string     `json:"provider,omitempty"`
	ArtifactKey string     `json:"artifact_key,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy.
func (r Report) Clone() Report {
	r.Keys = append([]string(nil), r.Keys...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	return r
}

// Store persists report metadata. Save upserts by ID.
type Store interface {
	Save(ctx context.Context, r Report) error
	Get(ctx context.Context, id string) (Report, bool, error)
	// List returns up to limit reports, newest first. A limit of zero or less
	// returns all of them.
	List(ctx context.Context, limit int) ([]Report, error)
	Close() error
}

// SortNewestFirst orders reports by creation time descending, then ID.
func SortNewestFirst(rs []Report) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})
}
