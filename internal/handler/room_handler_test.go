package handler_test

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/dto"
)

func TestRoomHandler_PublicRooms(t *testing.T) {
	f := newChatFixture(t)
	adminID := f.register(t, "admin")
	aliceID := f.register(t, "alice")
	f.expect(t, fiber.StatusOK, http.MethodPost, "/api/v1/admin/bootstrap", adminID, nil)

	create := map[string]string{"name": "gophers", "description": "<b>Go</b> talk<script>alert(1)</script>"}
	f.expect(t, fiber.StatusUnauthorized, http.MethodPost, "/api/v1/rooms", "", create)
	f.expect(t, fiber.StatusForbidden, http.MethodPost, "/api/v1/rooms", aliceID, create)

	out := f.expect(t, fiber.StatusCreated, http.MethodPost, "/api/v1/rooms", adminID, create)
	var room dto.RoomResponse
	decodeData(t, out, &room)
	require.Equal(t, "gophers", room.Name)
	require.NotNil(t, room.Description)
	require.NotContains(t, *room.Description, "script")

	f.expect(t, fiber.StatusConflict, http.MethodPost, "/api/v1/rooms", adminID, create)

	f.expect(t, fiber.StatusCreated, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", aliceID, map[string]string{"content": "hi"})

	out = f.expect(t, fiber.StatusOK, http.MethodGet, "/api/v1/rooms", "", nil)
	var rooms []dto.RoomResponse
	decodeData(t, out, &rooms)
	require.Len(t, rooms, 1)
	require.EqualValues(t, 1, rooms[0].MessageCount)

	f.expect(t, fiber.StatusForbidden, http.MethodDelete, "/api/v1/rooms/"+room.ID, aliceID, nil)
	f.expect(t, fiber.StatusOK, http.MethodDelete, "/api/v1/rooms/"+room.ID, adminID, nil)
	f.expect(t, fiber.StatusNotFound, http.MethodGet, "/api/v1/rooms/"+room.ID, "", nil)
}

func TestRoomHandler_DirectMessages(t *testing.T) {
	f := newChatFixture(t)
	aliceID := f.register(t, "alice")
	bobID := f.register(t, "bob")
	carolID := f.register(t, "carol")

	out := f.expect(t, fiber.StatusCreated, http.MethodPost, "/api/v1/dms", aliceID, map[string]string{"peer_id": bobID})
	var opened dto.DMResponse
	decodeData(t, out, &opened)
	require.True(t, opened.Created)
	require.True(t, opened.Room.IsDM)
	require.ElementsMatch(t, []string{aliceID, bobID}, opened.Room.Participants)

	out = f.expect(t, fiber.StatusOK, http.MethodPost, "/api/v1/dms", bobID, map[string]string{"peer_id": aliceID})
	var again dto.DMResponse
	decodeData(t, out, &again)
	require.False(t, again.Created)
	require.Equal(t, opened.Room.ID, again.Room.ID)

	f.expect(t, fiber.StatusBadRequest, http.MethodPost, "/api/v1/dms", aliceID, map[string]string{"peer_id": aliceID})
	f.expect(t, fiber.StatusBadRequest, http.MethodPost, "/api/v1/dms", aliceID, map[string]string{})

	dmPath := "/api/v1/rooms/" + opened.Room.ID
	f.expect(t, fiber.StatusForbidden, http.MethodGet, dmPath, carolID, nil)
	f.expect(t, fiber.StatusForbidden, http.MethodGet, dmPath+"/messages", carolID, nil)
	f.expect(t, fiber.StatusForbidden, http.MethodPost, dmPath+"/messages", carolID, map[string]string{"content": "hello?"})
	f.expect(t, fiber.StatusCreated, http.MethodPost, dmPath+"/messages", bobID, map[string]string{"content": "hey alice"})

	out = f.expect(t, fiber.StatusOK, http.MethodGet, "/api/v1/users/"+aliceID+"/dms", aliceID, nil)
	var dms []dto.RoomResponse
	decodeData(t, out, &dms)
	require.Len(t, dms, 1)
	f.expect(t, fiber.StatusForbidden, http.MethodGet, "/api/v1/users/"+aliceID+"/dms", carolID, nil)

	participantsPath := "/api/v1/dms/" + opened.Room.ID + "/participants"
	f.expect(t, fiber.StatusForbidden, http.MethodPost, participantsPath, carolID, map[string]string{"user_id": carolID})
	out = f.expect(t, fiber.StatusOK, http.MethodPost, participantsPath, aliceID, map[string]string{"user_id": carolID})
	var group dto.RoomResponse
	decodeData(t, out, &group)
	require.Len(t, group.Participants, 3)
	f.expect(t, fiber.StatusOK, http.MethodGet, dmPath, carolID, nil)

	out = f.expect(t, fiber.StatusOK, http.MethodDelete, participantsPath+"/"+carolID, carolID, nil)
	decodeData(t, out, &group)
	require.Len(t, group.Participants, 2)
}
