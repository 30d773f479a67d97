package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDocument_Field(t *testing.T) {
	doc := &Document{
		ID:     "d1",
		OrgID:  "o1",
		UserID: "u1",
		Data:   map[string]any{"projectId": "p1", "count": 3},
	}

	v, ok := doc.Field(FieldOrgID)
	assert.True(t, ok)
	assert.Equal(t, "o1", v)

	s, ok := doc.StringField("projectId")
	assert.True(t, ok)
	assert.Equal(t, "p1", s)

	s, ok = doc.StringField("count")
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	_, ok = doc.StringField("missing")
	assert.False(t, ok)
}

func TestDocument_CloneIsIndependent(t *testing.T) {
	doc := &Document{
		Editors: []string{"u2"},
		Data:    map[string]any{"title": "a"},
	}

	c := doc.Clone()
	c.Editors[0] = "u3"
	c.Data["title"] = "b"

	assert.Equal(t, "u2", doc.Editors[0])
	assert.Equal(t, "a", doc.Data["title"])
}

func TestNextStamp(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("advances to now", func(t *testing.T) {
		got := NextStamp(base, base.Add(time.Second))
		assert.Equal(t, base.Add(time.Second), got)
	})

	t.Run("same millisecond bumps", func(t *testing.T) {
		got := NextStamp(base, base.Add(300*time.Microsecond))
		assert.Equal(t, base.Add(time.Millisecond), got)
	})

	t.Run("clock behind bumps", func(t *testing.T) {
		got := NextStamp(base, base.Add(-time.Minute))
		assert.True(t, got.After(base))
	})
}

func TestInvite_Expired(t *testing.T) {
	now := time.Now()
	inv := &Invite{ExpiresAt: now}
	assert.False(t, inv.Expired(now))
	assert.True(t, inv.Expired(now.Add(time.Nanosecond)))
}

func TestIsReservedField(t *testing.T) {
	assert.True(t, IsReservedField("orgId"))
	assert.True(t, IsReservedField("editors"))
	assert.False(t, IsReservedField("title"))
}
