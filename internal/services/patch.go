package services

import (
	"encoding/json"
	"fmt"

	"note-sync/internal/models"
)

// Patches enumerate the mutable fields of each record kind. Each incoming
// data object is checked key by key, so a push can never write a field the
// schema does not own (rev, deleted and the server timestamps stay
// server-controlled), and a type mismatch fails the op up front.

type itemPatch struct {
	fields   map[string]json.RawMessage
	Type     *string
	Title    *string
	Content  *string
	Parent   *string
	Metadata json.RawMessage
	Tags     []string
}

func (p *itemPatch) set(key string, raw json.RawMessage) error {
	switch key {
	case "type":
		return unmarshalField(key, raw, &p.Type)
	case "title":
		return unmarshalField(key, raw, &p.Title)
	case "content":
		return unmarshalField(key, raw, &p.Content)
	case "parent":
		return unmarshalField(key, raw, &p.Parent)
	case "metadata":
		if !json.Valid(raw) {
			return fmt.Errorf("invalid field %q", key)
		}
		p.Metadata = raw
		return nil
	case "tags":
		tags := make([]string, 0)
		if err := json.Unmarshal(raw, &tags); err != nil {
			return fmt.Errorf("invalid field %q", key)
		}
		p.Tags = tags
		return nil
	default:
		return fmt.Errorf("unexpected field %q", key)
	}
}

func (p *itemPatch) apply(item *models.Item) {
	if p.Type != nil {
		item.Type = *p.Type
	}
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Content != nil {
		item.Content = *p.Content
	}
	if _, ok := p.fields["parent"]; ok {
		item.Parent = p.Parent
	}
	if _, ok := p.fields["metadata"]; ok {
		item.Metadata = p.Metadata
	}
	if _, ok := p.fields["tags"]; ok {
		item.Tags = p.Tags
	}
}

type tagPatch struct {
	fields      map[string]json.RawMessage
	Name        *string
	Color       *string
	Description *string
	Parent      *string
}

func (p *tagPatch) set(key string, raw json.RawMessage) error {
	switch key {
	case "name":
		return unmarshalField(key, raw, &p.Name)
	case "color":
		return unmarshalField(key, raw, &p.Color)
	case "description":
		return unmarshalField(key, raw, &p.Description)
	case "parent":
		return unmarshalField(key, raw, &p.Parent)
	default:
		return fmt.Errorf("unexpected field %q", key)
	}
}

func (p *tagPatch) apply(tag *models.Tag) {
	if p.Name != nil {
		tag.Name = *p.Name
	}
	if p.Color != nil {
		tag.Color = *p.Color
	}
	if p.Description != nil {
		tag.Description = *p.Description
	}
	if _, ok := p.fields["parent"]; ok {
		tag.Parent = p.Parent
	}
}

type fieldPatch interface {
	set(key string, raw json.RawMessage) error
	seed(fields map[string]json.RawMessage)
}

func (p *itemPatch) seed(fields map[string]json.RawMessage) { p.fields = fields }
func (p *tagPatch) seed(fields map[string]json.RawMessage) { p.fields = fields }

func decodePatch(data json.RawMessage, into fieldPatch) error {
	if len(data) == 0 {
		into.seed(map[string]json.RawMessage{})
		return nil
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("data must be an object")
	}
	into.seed(fields)
	for key, raw := range fields {
		if err := into.set(key, raw); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalField[T any](key string, raw json.RawMessage, into *T) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("invalid field %q", key)
	}
	return nil
}
