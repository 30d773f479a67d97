package models

import (
	"fmt"
	"time"
)

// Reserved document field names. They address the typed columns of a
// Document and cannot be written through Data.
const (
	FieldID        = "id"
	FieldOrgID     = "orgId"
	FieldUserID    = "userId"
	FieldEditors   = "editors"
	FieldDeleted   = "deleted"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var reservedFields = map[string]struct{}{
	FieldID:        {},
	FieldOrgID:     {},
	FieldUserID:    {},
	FieldEditors:   {},
	FieldDeleted:   {},
	FieldCreatedAt: {},
	FieldUpdatedAt: {},
}

// IsReservedField reports whether name addresses a typed Document column
func IsReservedField(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// Document is a record of an org-scoped table
type Document struct {
	ID        string         `json:"id"`
	Table     string         `json:"table"`
	OrgID     string         `json:"org_id"`
	UserID    string         `json:"user_id"`
	Editors   []string       `json:"editors,omitempty"`
	Deleted   bool           `json:"deleted,omitempty"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Field returns the value of a named field. Reserved names map to the typed
// columns, anything else is looked up in Data.
func (d *Document) Field(name string) (any, bool) {
	switch name {
	case FieldID:
		return d.ID, true
	case FieldOrgID:
		return d.OrgID, true
	case FieldUserID:
		return d.UserID, true
	}
	v, ok := d.Data[name]
	return v, ok
}

// StringField returns a field rendered as a string reference, as used by
// foreign keys.
func (d *Document) StringField(name string) (string, bool) {
	v, ok := d.Field(name)
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// HasEditor reports whether userID is in the editor list
func (d *Document) HasEditor(userID string) bool {
	for _, e := range d.Editors {
		if e == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with d
func (d *Document) Clone() *Document {
	c := *d
	if d.Editors != nil {
		c.Editors = append([]string(nil), d.Editors...)
	}
	c.Data = CloneData(d.Data)
	return &c
}

// CloneData copies a data map one level deep
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// NextStamp returns the UpdatedAt for a write at now following a write at
// prev. Stamps have millisecond precision and strictly increase so that an
// optimistic concurrency check always observes an intervening write.
func NextStamp(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}
