package repos

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"note-sync/internal/models"
)

var ErrNotFound = errors.New("not found")

// SyncRepo is the persistence layer for sync records. Timestamps are stored
// as unix nanoseconds so the server_updated_at range scans used by the change
// feed compare exactly.
type SyncRepo struct {
	db *sql.DB
}

func NewSyncRepo(db *sql.DB) *SyncRepo {
	return &SyncRepo{db: db}
}

func (r *SyncRepo) DB() *sql.DB {
	return r.db
}

func (r *SyncRepo) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *SyncRepo) GetItemTx(tx *sql.Tx, id string) (*models.Item, error) {
	row := tx.QueryRow(`
		SELECT id, type, title, content, parent, metadata, tags, rev, deleted, deleted_at, created_at, server_updated_at
		FROM items WHERE id = ?
	`, id)
	return scanItem(row)
}

func (r *SyncRepo) UpsertItemTx(tx *sql.Tx, item *models.Item) error {
	_, err := tx.Exec(`
		INSERT INTO items (id, type, title, content, parent, metadata, tags, rev, deleted, deleted_at, created_at, server_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			title = excluded.title,
			content = excluded.content,
			parent = excluded.parent,
			metadata = excluded.metadata,
			tags = excluded.tags,
			rev = excluded.rev,
			deleted = excluded.deleted,
			deleted_at = excluded.deleted_at,
			server_updated_at = excluded.server_updated_at
	`, item.ID, item.Type, item.Title, item.Content, nullableID(item.Parent),
		encodeMetadata(item.Metadata), encodeTagIDs(item.Tags), item.Rev, item.Deleted,
		nullableTime(item.DeletedAt), item.CreatedAt.UnixNano(), item.ServerUpdatedAt.UnixNano())
	return err
}

// ChangedItems returns the non-deleted items modified strictly after since,
// plus the bare ids of items tombstoned strictly after since.
func (r *SyncRepo) ChangedItems(since time.Time) ([]models.Item, []string, error) {
	rows, err := r.db.Query(`
		SELECT id, type, title, content, parent, metadata, tags, rev, deleted, deleted_at, created_at, server_updated_at
		FROM items
		WHERE server_updated_at > ?
		ORDER BY server_updated_at ASC
	`, since.UnixNano())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	upserts := make([]models.Item, 0)
	deletes := make([]string, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, nil, err
		}
		if it.Deleted {
			deletes = append(deletes, it.ID)
			continue
		}
		upserts = append(upserts, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return upserts, deletes, nil
}

func (r *SyncRepo) GetTagTx(tx *sql.Tx, id string) (*models.Tag, error) {
	row := tx.QueryRow(`
		SELECT id, name, color, description, parent, rev, deleted, deleted_at, created_at, server_updated_at
		FROM tags WHERE id = ?
	`, id)
	return scanTag(row)
}

func (r *SyncRepo) UpsertTagTx(tx *sql.Tx, tag *models.Tag) error {
	_, err := tx.Exec(`
		INSERT INTO tags (id, name, color, description, parent, rev, deleted, deleted_at, created_at, server_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			description = excluded.description,
			parent = excluded.parent,
			rev = excluded.rev,
			deleted = excluded.deleted,
			deleted_at = excluded.deleted_at,
			server_updated_at = excluded.server_updated_at
	`, tag.ID, tag.Name, tag.Color, tag.Description, nullableID(tag.Parent),
		tag.Rev, tag.Deleted, nullableTime(tag.DeletedAt), tag.CreatedAt.UnixNano(), tag.ServerUpdatedAt.UnixNano())
	return err
}

func (r *SyncRepo) ChangedTags(since time.Time) ([]models.Tag, []string, error) {
	rows, err := r.db.Query(`
		SELECT id, name, color, description, parent, rev, deleted, deleted_at, created_at, server_updated_at
		FROM tags
		WHERE server_updated_at > ?
		ORDER BY server_updated_at ASC
	`, since.UnixNano())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	upserts := make([]models.Tag, 0)
	deletes := make([]string, 0)
	for rows.Next() {
		tg, err := scanTag(rows)
		if err != nil {
			return nil, nil, err
		}
		if tg.Deleted {
			deletes = append(deletes, tg.ID)
			continue
		}
		upserts = append(upserts, *tg)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return upserts, deletes, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		it        models.Item
		parent    sql.NullString
		metadata  string
		tags      string
		deletedAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&it.ID, &it.Type, &it.Title, &it.Content, &parent, &metadata, &tags,
		&it.Rev, &it.Deleted, &deletedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if parent.Valid {
		it.Parent = &parent.String
	}
	it.Metadata = []byte(metadata)
	it.Tags = decodeTagIDs(tags)
	it.DeletedAt = timeFromNullable(deletedAt)
	it.CreatedAt = time.Unix(0, createdAt).UTC()
	it.ServerUpdatedAt = time.Unix(0, updatedAt).UTC()
	return &it, nil
}

func scanTag(row rowScanner) (*models.Tag, error) {
	var (
		tg        models.Tag
		parent    sql.NullString
		deletedAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&tg.ID, &tg.Name, &tg.Color, &tg.Description, &parent,
		&tg.Rev, &tg.Deleted, &deletedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if parent.Valid {
		tg.Parent = &parent.String
	}
	tg.DeletedAt = timeFromNullable(deletedAt)
	tg.CreatedAt = time.Unix(0, createdAt).UTC()
	tg.ServerUpdatedAt = time.Unix(0, updatedAt).UTC()
	return &tg, nil
}

func nullableID(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeFromNullable(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func encodeTagIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTagIDs(raw string) []string {
	ids := make([]string, 0)
	if raw == "" {
		return ids
	}
	_ = json.Unmarshal([]byte(raw), &ids)
	return ids
}

func encodeMetadata(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
