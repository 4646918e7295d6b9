package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysocial/yserver/models"
)

func testGraph() ([]models.Account, []models.Follow) {
	accounts := []models.Account{
		{Handle: "alice", Leaning: "left"},
		{Handle: "bob", Leaning: "right"},
		{Handle: "carol", Leaning: "left"},
		{Handle: "dave", Leaning: "right"},
		{Handle: "erin", Leaning: "left"},
	}
	for i := range accounts {
		accounts[i].ID = uint(i + 1)
	}
	// alice -> bob; carol -> bob, dave; dave -> bob; erin -> dave
	edges := []models.Follow{
		{FollowerID: 1, FolloweeID: 2},
		{FollowerID: 3, FolloweeID: 2},
		{FollowerID: 3, FolloweeID: 4},
		{FollowerID: 4, FolloweeID: 2},
		{FollowerID: 5, FolloweeID: 4},
	}
	return accounts, edges
}

func TestSuggestCommonNeighbors(t *testing.T) {
	accounts, edges := testGraph()
	alice := &accounts[0]

	got := suggestFollows(alice, accounts, edges, SuggestCommonNeighbors, false, 10)

	// bob is already followed and alice never suggests herself
	for _, sv := range got {
		assert.NotEqual(t, alice.ID, sv.AccountID)
		assert.NotEqual(t, uint(2), sv.AccountID)
	}
	require.Len(t, got, 3)

	// carol and dave both share bob as a followee; erin shares nobody
	assert.Equal(t, uint(3), got[0].AccountID)
	assert.EqualValues(t, 1, got[0].Score)
	assert.Equal(t, uint(4), got[1].AccountID)
	assert.Equal(t, uint(5), got[2].AccountID)
	assert.EqualValues(t, 0, got[2].Score)
}

func TestSuggestPreferentialAttachment(t *testing.T) {
	accounts, edges := testGraph()
	erin := &accounts[4]

	got := suggestFollows(erin, accounts, edges, SuggestPreferentialAttachment, false, 10)
	require.NotEmpty(t, got)
	// bob has the most followers
	assert.Equal(t, uint(2), got[0].AccountID)
	assert.EqualValues(t, 3, got[0].Score)
}

func TestSuggestJaccard(t *testing.T) {
	accounts, edges := testGraph()
	alice := &accounts[0]

	got := suggestFollows(alice, accounts, edges, SuggestJaccard, false, 10)
	require.Len(t, got, 3)
	// carol follows {bob, dave}, alice follows {bob}: 1/2
	assert.Equal(t, uint(4), got[0].AccountID) // dave follows exactly {bob}: 1/1
	assert.EqualValues(t, 1, got[0].Score)
	assert.Equal(t, uint(3), got[1].AccountID)
	assert.EqualValues(t, 0.5, got[1].Score)
}

func TestSuggestLeaningBias(t *testing.T) {
	accounts, edges := testGraph()
	alice := &accounts[0]

	unbiased := suggestFollows(alice, accounts, edges, SuggestCommonNeighbors, false, 10)
	biased := suggestFollows(alice, accounts, edges, SuggestCommonNeighbors, true, 10)

	// with the bias, carol (left, score 1*1.5) outranks dave (right, score 1)
	assert.Equal(t, uint(3), unbiased[0].AccountID)
	assert.Equal(t, uint(3), biased[0].AccountID)
	assert.Greater(t, biased[0].Score, unbiased[0].Score)
}

func TestSuggestLimit(t *testing.T) {
	accounts, edges := testGraph()
	alice := &accounts[0]

	got := suggestFollows(alice, accounts, edges, SuggestRandom, false, 2)
	assert.Len(t, got, 2)
}

func TestHandleGetFollowSuggestions(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	alice := mustRegister(t, s, "alice")
	bob := mustRegister(t, s, "bob")
	carol := mustRegister(t, s, "carol")

	_, err := s.follow(ctx, &FollowRequest{FollowerID: alice.ID, FolloweeID: bob.ID})
	require.NoError(t, err)
	_, err = s.follow(ctx, &FollowRequest{FollowerID: carol.ID, FolloweeID: bob.ID})
	require.NoError(t, err)

	rec, err := doJSON(t, s.HandleGetFollowSuggestions, "GET", "/accounts/:id/suggestions", nil,
		map[string]string{"id": itoa(alice.ID)})
	require.NoError(t, err)
	var out []SuggestionView
	decodeJSON(t, rec, &out)
	require.Len(t, out, 1)
	assert.Equal(t, carol.ID, out[0].AccountID)

	_, err = doJSON(t, s.HandleGetFollowSuggestions, "GET", "/accounts/:id/suggestions?mode=psychic", nil,
		map[string]string{"id": itoa(alice.ID)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
