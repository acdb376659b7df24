package ingest

import (
	"context"
	"slices"
	"sync"

	"github.com/deusflow/newsagg/internal/model"
)

// Job binds the configured source list to a Service so a scheduler can run it.
type Job struct {
	svc *Service

	mu      sync.RWMutex
	sources []model.FeedSource
}

func NewJob(svc *Service, sources []model.FeedSource) *Job {
	return &Job{svc: svc, sources: slices.Clone(sources)}
}

// Run ingests every configured source. Source failures live in the report;
// the error is only set when ctx ended the run early.
func (j *Job) Run(ctx context.Context) (Report, error) {
	r := j.svc.IngestFromSources(ctx, j.Sources())
	return r, ctx.Err()
}

func (j *Job) Sources() []model.FeedSource {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.sources)
}

// AddSource appends src unless a source with the same name is configured.
func (j *Job) AddSource(src model.FeedSource) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, s := range j.sources {
		if s.Name == src.Name {
			return false
		}
	}
	j.sources = append(j.sources, src)
	return true
}
