package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"playroom/internal/identity"
)

func timestamps(reviews []Review) []int64 {
	out := make([]int64, len(reviews))
	for i, r := range reviews {
		out[i] = r.CreatedAt
	}
	return out
}

func TestSortByRecency(t *testing.T) {
	in := []Review{{CreatedAt: 100}, {CreatedAt: 300}, {CreatedAt: 200}}

	got := SortByRecency(in)

	assert.Equal(t, []int64{300, 200, 100}, timestamps(got))
	assert.Equal(t, []int64{100, 300, 200}, timestamps(in), "input is not modified")
}

func TestSortByRecency_StableAndIdempotent(t *testing.T) {
	in := []Review{
		{ID: "a", CreatedAt: 5},
		{ID: "b", CreatedAt: 9},
		{ID: "c", CreatedAt: 5},
		{ID: "d", CreatedAt: 1},
	}

	once := SortByRecency(in)
	assert.Equal(t, []string{"b", "a", "c", "d"}, []string{once[0].ID, once[1].ID, once[2].ID, once[3].ID})
	assert.Equal(t, once, SortByRecency(once))

	for i := 1; i < len(once); i++ {
		assert.GreaterOrEqual(t, once[i-1].CreatedAt, once[i].CreatedAt)
	}
}

func TestSortByRecency_Empty(t *testing.T) {
	assert.Empty(t, SortByRecency(nil))
}

func TestCanDelete(t *testing.T) {
	rv := Review{UserID: "u1"}

	assert.True(t, CanDelete(&identity.Identity{ID: "u1"}, rv))
	assert.False(t, CanDelete(&identity.Identity{ID: "u2"}, rv))
	assert.True(t, CanDelete(&identity.Identity{ID: "u2", Roles: []identity.Role{identity.RoleAdmin}}, rv))
	assert.False(t, CanDelete(nil, rv))
}

func TestViews(t *testing.T) {
	views := Views(&identity.Identity{ID: "u1"}, []Review{{ID: "r1", UserID: "u1"}, {ID: "r2", UserID: "u2"}})
	assert.True(t, views[0].CanDelete)
	assert.False(t, views[1].CanDelete)
}

func TestViews_EscapeComment(t *testing.T) {
	views := Views(nil, []Review{{ID: "r1", Comment: "a<b\n<script>"}})
	assert.Equal(t, "a<b\n<script>", views[0].Comment)
	assert.Equal(t, "a&lt;b<br>&lt;script&gt;", views[0].CommentHTML)
}
