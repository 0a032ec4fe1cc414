package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hire-realtime/internal/models"
)

func TestCreateGroupNotifiesMembers(t *testing.T) {
	f := setupConversationRouter("u1")
	title := "Backend hiring panel"
	conv := direct("g1", "u1", "u2", "u3")
	conv.IsGroup = true
	conv.Title = &title
	f.convRepo.On("CreateGroup", mock.Anything, "u1", title, []string{"u2", "u3"}).Return(conv, nil).Once()

	rec := doJSON(t, f.router, http.MethodPost, "/conversations/group", `{"title":"Backend hiring panel","member_ids":["u2","u3"]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["is_group"])
	assert.ElementsMatch(t, []string{"user:u2", "user:u3"}, f.bus.targets(models.EventNewConversation))
	f.assertExpectations(t)
}

func TestCreateGroupValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing title", body: `{"title":"  ","member_ids":["u2"]}`},
		{name: "only creator", body: `{"title":"Panel","member_ids":["u1"]}`},
		{name: "no members", body: `{"title":"Panel"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupConversationRouter("u1")

			rec := doJSON(t, f.router, http.MethodPost, "/conversations/group", tc.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_group", decodeBody(t, rec)["code"])
			f.convRepo.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateGroupRepoError(t *testing.T) {
	f := setupConversationRouter("u1")
	f.convRepo.On("CreateGroup", mock.Anything, "u1", "Panel", []string{"u2"}).Return(nil, assert.AnError).Once()

	rec := doJSON(t, f.router, http.MethodPost, "/conversations/group", `{"title":"Panel","member_ids":["u2"]}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.bus.deliveries)
	f.assertExpectations(t)
}
