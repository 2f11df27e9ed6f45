// Package changefeed merges document and task-changelog activity into
// a single timestamp-ordered event stream for polling clients.
package changefeed

import (
	"log"
	"sort"
	"time"

	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/types"
)

type Feed struct {
	store store.Store
}

func New(s store.Store) *Feed {
	return &Feed{store: s}
}

// Result bundles the merged event list with the cursor a caller should
// pass as `since` on its next poll.
type Result struct {
	Events          []*types.ChangeEvent
	LatestTimestamp time.Time
}

// Changes implements changes(since, project_id). Any internal error
// degrades to an empty result at the same cursor rather than
// propagating, so a polling client simply retries unchanged.
func (f *Feed) Changes(projectID int64, since time.Time) *Result {
	events, latest, err := f.changes(projectID, since)
	if err != nil {
		log.Printf("[CHANGEFEED] query error for project %d: %v", projectID, err)
		return &Result{LatestTimestamp: since}
	}
	return &Result{Events: events, LatestTimestamp: latest}
}

func (f *Feed) changes(projectID int64, since time.Time) ([]*types.ChangeEvent, time.Time, error) {
	created, err := f.store.ListDocumentsCreatedSince(projectID, since)
	if err != nil {
		return nil, since, err
	}
	updated, err := f.store.ListDocumentsUpdatedSince(projectID, since)
	if err != nil {
		return nil, since, err
	}
	changes, err := f.store.ListChangesSince(projectID, since)
	if err != nil {
		return nil, since, err
	}

	events := make([]*types.ChangeEvent, 0, len(created)+len(updated)+len(changes))
	latest := since

	for _, d := range created {
		events = append(events, &types.ChangeEvent{
			Type: types.EventDocumentCreated, Timestamp: d.CreatedAt, ProjectID: projectID, DocID: d.ID,
		})
		if d.CreatedAt.After(latest) {
			latest = d.CreatedAt
		}
	}
	for _, d := range updated {
		events = append(events, &types.ChangeEvent{
			Type: types.EventDocumentUpdated, Timestamp: d.UpdatedAt, ProjectID: projectID, DocID: d.ID,
		})
		if d.UpdatedAt.After(latest) {
			latest = d.UpdatedAt
		}
	}
	for _, c := range changes {
		events = append(events, &types.ChangeEvent{
			Type: types.EventTaskUpdated, Timestamp: c.ChangedAt, ProjectID: projectID, TaskID: c.TaskID,
			OldStatus: c.FromState, NewStatus: c.ToState, ActorID: c.ActorID, Notes: c.Notes,
		})
		if c.ChangedAt.After(latest) {
			latest = c.ChangedAt
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, latest, nil
}
