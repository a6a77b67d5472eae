package webhook

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/linkbridge/internal/types"
)

var (
	_ types.Applier       = (*Feed)(nil)
	_ types.CharacterView = (*Feed)(nil)
)

func TestFeedSince(t *testing.T) {
	f := NewFeed(0)
	f.Apply("Dynamite", false)
	f.ApplyStatus("coins", 3)
	f.Apply("Bomb", true)

	all := f.Since(0, 0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].Seq)
	assert.Equal(t, "Dynamite", all[0].Name)
	assert.Equal(t, "coins", all[1].Status)
	assert.Equal(t, 3.0, all[1].Amount)
	assert.True(t, all[2].FromLink)

	rest := f.Since(1, 1)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(2), rest[0].Seq)

	assert.Empty(t, f.Since(3, 0))
}

func TestFeedDropsOldest(t *testing.T) {
	f := NewFeed(2)
	f.Apply("a", false)
	f.Apply("b", false)
	f.Apply("c", false)

	got := f.Since(0, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, int64(3), got[1].Seq)
}

func TestFeedCharacter(t *testing.T) {
	f := NewFeed(0)
	assert.True(t, types.Live(f))

	f.SetCharacter(CharacterState{Connected: true, Alive: false})
	assert.False(t, types.Live(f))
}

func TestEffectsEndpoint(t *testing.T) {
	feed := NewFeed(0)
	feed.Apply("Dynamite", false)
	feed.Apply("Bomb", true)
	srv := NewServer(&fakeController{}, feed)

	w := do(t, srv, http.MethodGet, "/api/effects?after=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[[]AppliedEffect](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "Bomb", got[0].Name)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/effects?after=x", "").Code)
}

func TestCharacterEndpoint(t *testing.T) {
	feed := NewFeed(0)
	srv := NewServer(&fakeController{}, feed)

	w := do(t, srv, http.MethodPut, "/api/character", `{"connected":true,"alive":true,"incapacitated":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, feed.Incapacitated())
}

func TestFeedRoutesAbsentWithoutFeed(t *testing.T) {
	srv := NewServer(&fakeController{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/effects", "").Code)
}
