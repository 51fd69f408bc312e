package models

import (
	"encoding/json"
	"time"
)

// Item is a note-like record. The JSON tags are the pull/push wire shape;
// tombstone bookkeeping stays server-side.
type Item struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	Parent          *string         `json:"parent"`
	Metadata        json.RawMessage `json:"metadata"`
	Tags            []string        `json:"tags"`
	Rev             int64           `json:"rev"`
	Deleted         bool            `json:"-"`
	DeletedAt       *time.Time      `json:"-"`
	CreatedAt       time.Time       `json:"-"`
	ServerUpdatedAt time.Time       `json:"server_updated_at"`
}

type Tag struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Color           string     `json:"color"`
	Description     string     `json:"description"`
	Parent          *string    `json:"parent"`
	Rev             int64      `json:"rev"`
	Deleted         bool       `json:"-"`
	DeletedAt       *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"-"`
	ServerUpdatedAt time.Time  `json:"server_updated_at"`
}

const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

const (
	StatusApplied  = "applied"
	StatusConflict = "conflict"
	StatusError    = "error"
)

// PushOp is one client mutation. Data carries only the fields the client
// wants to change; it is validated against the mutable field set of the
// record kind before anything touches the store.
type PushOp struct {
	Op        string          `json:"op"`
	ID        string          `json:"id"`
	ClientRev int64           `json:"client_rev"`
	Data      json.RawMessage `json:"data"`
}

type PushRequest struct {
	Items []PushOp `json:"items"`
	Tags  []PushOp `json:"tags"`
}

// PushResult is the per-op outcome. Rev is a pointer so an applied delete of
// an absent record can still report rev 0 explicitly.
type PushResult struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Error           string     `json:"error,omitempty"`
	Rev             *int64     `json:"rev,omitempty"`
	ServerUpdatedAt *time.Time `json:"server_updated_at,omitempty"`
	ServerSnapshot  any        `json:"server_snapshot,omitempty"`
}

type PushResponse struct {
	Items []PushResult `json:"items"`
	Tags  []PushResult `json:"tags"`
}

type ItemChanges struct {
	Upserts []Item   `json:"upserts"`
	Deletes []string `json:"deletes"`
}

type TagChanges struct {
	Upserts []Tag    `json:"upserts"`
	Deletes []string `json:"deletes"`
}

type Changes struct {
	Items ItemChanges `json:"items"`
	Tags  TagChanges  `json:"tags"`
}

type PullResponse struct {
	Cursor  string  `json:"cursor"`
	Changes Changes `json:"changes"`
}
