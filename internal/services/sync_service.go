package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"note-sync/internal/clock"
	"note-sync/internal/models"
	"note-sync/internal/repos"
)

// SyncService implements the pull/push reconciliation engine: an incremental
// change feed keyed on server_updated_at, and batched mutations fenced by
// per-record revision numbers.
type SyncService struct {
	repo  *repos.SyncRepo
	clock clock.Clock
}

func NewSyncService(repo *repos.SyncRepo, clk clock.Clock) *SyncService {
	return &SyncService{repo: repo, clock: clk}
}

// Pull returns every change committed strictly after since, plus a cursor the
// client hands back on its next call. The cursor is sampled before the change
// queries run: a write landing mid-query then carries a server_updated_at at
// or past the cursor, so the next pull picks it up instead of skipping it.
func (s *SyncService) Pull(since string) (*models.PullResponse, error) {
	sinceTime := parseCursor(since)
	cursor := s.clock.Now().UTC()

	itemUpserts, itemDeletes, err := s.repo.ChangedItems(sinceTime)
	if err != nil {
		return nil, fmt.Errorf("list changed items: %w", err)
	}
	tagUpserts, tagDeletes, err := s.repo.ChangedTags(sinceTime)
	if err != nil {
		return nil, fmt.Errorf("list changed tags: %w", err)
	}

	return &models.PullResponse{
		Cursor: cursor.Format(time.RFC3339Nano),
		Changes: models.Changes{
			Items: models.ItemChanges{Upserts: itemUpserts, Deletes: itemDeletes},
			Tags:  models.TagChanges{Upserts: tagUpserts, Deletes: tagDeletes},
		},
	}, nil
}

// parseCursor degrades an absent or malformed cursor to the epoch, turning
// the call into a full resync instead of an error.
func parseCursor(since string) time.Time {
	since = strings.TrimSpace(since)
	if since == "" {
		return time.Unix(0, 0).UTC()
	}
	t, err := time.Parse(time.RFC3339Nano, since)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}

// Push applies each op independently: a conflict or validation failure on one
// op never rolls back another. Only a store failure aborts the whole call.
func (s *SyncService) Push(req models.PushRequest) (*models.PushResponse, error) {
	resp := &models.PushResponse{
		Items: make([]models.PushResult, 0, len(req.Items)),
		Tags:  make([]models.PushResult, 0, len(req.Tags)),
	}
	for _, op := range req.Items {
		res, err := s.applyItemOp(op)
		if err != nil {
			return nil, err
		}
		resp.Items = append(resp.Items, res)
	}
	for _, op := range req.Tags {
		res, err := s.applyTagOp(op)
		if err != nil {
			return nil, err
		}
		resp.Tags = append(resp.Tags, res)
	}
	return resp, nil
}

func (s *SyncService) applyItemOp(op models.PushOp) (models.PushResult, error) {
	if err := validateOp(op); err != nil {
		return errorResult(op.ID, err), nil
	}
	var patch itemPatch
	if op.Op == models.OpUpsert {
		if err := decodePatch(op.Data, &patch); err != nil {
			return errorResult(op.ID, err), nil
		}
	}

	var res models.PushResult
	err := s.repo.WithTx(func(tx *sql.Tx) error {
		current, err := s.repo.GetItemTx(tx, op.ID)
		if err != nil && !errors.Is(err, repos.ErrNotFound) {
			return err
		}

		outcome := fence(op, current == nil, serverRev(current))
		switch outcome {
		case fenceAbsentDelete:
			res = appliedResult(op.ID, 0, nil)
			return nil
		case fenceConflict:
			res = conflictResult(op.ID, snapshotOrNil(current))
			return nil
		}

		now := s.clock.Now().UTC()
		if op.Op == models.OpDelete {
			if current.Deleted {
				// Tombstones are terminal; a repeated delete is a no-op.
				res = appliedResult(op.ID, current.Rev, nil)
				return nil
			}
			current.Deleted = true
			current.DeletedAt = &now
			current.Rev++
			current.ServerUpdatedAt = now
			if err := s.repo.UpsertItemTx(tx, current); err != nil {
				return err
			}
			res = appliedResult(op.ID, current.Rev, nil)
			return nil
		}

		if current != nil && current.Deleted {
			// Editing a tombstone would resurrect it; report the
			// authoritative state instead.
			res = conflictResult(op.ID, snapshotOrNil(current))
			return nil
		}
		if current == nil {
			current = &models.Item{ID: op.ID, Type: "note", Metadata: json.RawMessage("{}"), Tags: []string{}, CreatedAt: now}
		}
		patch.apply(current)
		current.Rev++
		current.ServerUpdatedAt = now
		if err := s.repo.UpsertItemTx(tx, current); err != nil {
			return err
		}
		res = appliedResult(op.ID, current.Rev, &now)
		return nil
	})
	if err != nil {
		return models.PushResult{}, fmt.Errorf("apply item op %s: %w", op.ID, err)
	}
	return res, nil
}

func (s *SyncService) applyTagOp(op models.PushOp) (models.PushResult, error) {
	if err := validateOp(op); err != nil {
		return errorResult(op.ID, err), nil
	}
	var patch tagPatch
	if op.Op == models.OpUpsert {
		if err := decodePatch(op.Data, &patch); err != nil {
			return errorResult(op.ID, err), nil
		}
	}

	var res models.PushResult
	err := s.repo.WithTx(func(tx *sql.Tx) error {
		current, err := s.repo.GetTagTx(tx, op.ID)
		if err != nil && !errors.Is(err, repos.ErrNotFound) {
			return err
		}

		outcome := fence(op, current == nil, tagServerRev(current))
		switch outcome {
		case fenceAbsentDelete:
			res = appliedResult(op.ID, 0, nil)
			return nil
		case fenceConflict:
			res = conflictResult(op.ID, tagSnapshotOrNil(current))
			return nil
		}

		now := s.clock.Now().UTC()
		if op.Op == models.OpDelete {
			if current.Deleted {
				res = appliedResult(op.ID, current.Rev, nil)
				return nil
			}
			current.Deleted = true
			current.DeletedAt = &now
			current.Rev++
			current.ServerUpdatedAt = now
			if err := s.repo.UpsertTagTx(tx, current); err != nil {
				return err
			}
			res = appliedResult(op.ID, current.Rev, nil)
			return nil
		}

		if current != nil && current.Deleted {
			res = conflictResult(op.ID, tagSnapshotOrNil(current))
			return nil
		}
		if current == nil {
			current = &models.Tag{ID: op.ID, CreatedAt: now}
		}
		patch.apply(current)
		current.Rev++
		current.ServerUpdatedAt = now
		if err := s.repo.UpsertTagTx(tx, current); err != nil {
			return err
		}
		res = appliedResult(op.ID, current.Rev, &now)
		return nil
	})
	if err != nil {
		return models.PushResult{}, fmt.Errorf("apply tag op %s: %w", op.ID, err)
	}
	return res, nil
}

type fenceOutcome int

const (
	fenceAccepted fenceOutcome = iota
	fenceConflict
	fenceAbsentDelete
)

// fence is the optimistic-concurrency check: the op is accepted only when the
// client edited the exact revision currently on the server (client_rev - 1 ==
// server rev, with an absent record counting as rev 0). Deleting an absent
// record short-circuits to an idempotent success.
func fence(op models.PushOp, absent bool, srvRev int64) fenceOutcome {
	if absent && op.Op == models.OpDelete {
		return fenceAbsentDelete
	}
	if op.ClientRev-1 != srvRev {
		return fenceConflict
	}
	return fenceAccepted
}

func validateOp(op models.PushOp) error {
	if strings.TrimSpace(op.ID) == "" {
		return fmt.Errorf("missing id")
	}
	if _, err := uuid.Parse(op.ID); err != nil {
		return fmt.Errorf("invalid id %q", op.ID)
	}
	if op.Op != models.OpUpsert && op.Op != models.OpDelete {
		return fmt.Errorf("unknown op %q", op.Op)
	}
	if op.ClientRev < 0 {
		return fmt.Errorf("negative client_rev")
	}
	return nil
}

func serverRev(item *models.Item) int64 {
	if item == nil {
		return 0
	}
	return item.Rev
}

func tagServerRev(tag *models.Tag) int64 {
	if tag == nil {
		return 0
	}
	return tag.Rev
}

func snapshotOrNil(item *models.Item) any {
	if item == nil {
		return nil
	}
	return item
}

func tagSnapshotOrNil(tag *models.Tag) any {
	if tag == nil {
		return nil
	}
	return tag
}

func appliedResult(id string, rev int64, updatedAt *time.Time) models.PushResult {
	return models.PushResult{ID: id, Status: models.StatusApplied, Rev: &rev, ServerUpdatedAt: updatedAt}
}

func conflictResult(id string, snapshot any) models.PushResult {
	return models.PushResult{ID: id, Status: models.StatusConflict, ServerSnapshot: snapshot}
}

func errorResult(id string, err error) models.PushResult {
	return models.PushResult{ID: id, Status: models.StatusError, Error: err.Error()}
}
