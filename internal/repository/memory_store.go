package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/gema-chat-api/internal/models"
)

// MemoryStore keeps every entity in process memory. It serves development and
// tests and offers the same semantics as GormStore.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	rooms    map[string]models.Room
	messages map[string]models.Message
	botID    string
	now      func() time.Time
}

// NewMemoryStore constructs an in-memory store and ensures the bot account.
func NewMemoryStore(ctx context.Context, opts Options) (*MemoryStore, error) {
	store := &MemoryStore{
		users:    make(map[string]models.User),
		rooms:    make(map[string]models.Room),
		messages: make(map[string]models.Message),
		now:      opts.clock(),
	}

	botID, err := ensureBot(ctx, store, opts)
	if err != nil {
		return nil, err
	}
	store.botID = botID

	return store, nil
}

func (s *MemoryStore) BotID() string {
	return s.botID
}

func cloneRoom(room models.Room) models.Room {
	room.Participants = append([]models.RoomParticipant(nil), room.Participants...)
	sort.SliceStable(room.Participants, func(i, j int) bool {
		return room.Participants[i].Position < room.Participants[j].Position
	})
	return room
}

func cloneMessage(message models.Message) models.Message {
	message.Poll = append([]byte(nil), message.Poll...)
	message.Attachments = append([]byte(nil), message.Attachments...)
	message.ReplyTo = nil
	return message
}

// withAuthor attaches the author profile the way a preload would.
func (s *MemoryStore) withAuthor(message models.Message) models.Message {
	message = cloneMessage(message)
	if user, ok := s.users[message.UserID]; ok {
		message.User = &user
	}
	return message
}

// Users

func (s *MemoryStore) CreateUser(_ context.Context, input CreateUserInput) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.TrimSpace(input.Username)
	for _, user := range s.users {
		if user.Username == username {
			return models.User{}, fmt.Errorf("username %q: %w", username, ErrDuplicateName)
		}
	}

	status := input.Status
	if status == "" {
		status = models.UserStatusOnline
	}
	now := s.now()
	user := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Avatar:    input.Avatar,
		Status:    status,
		IsAdmin:   input.IsAdmin,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return user, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

func sortUsers(users []models.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
}

func (s *MemoryStore) filterUsers(keep func(models.User) bool) []models.User {
	users := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		if keep(user) {
			users = append(users, user)
		}
	}
	sortUsers(users)
	return users
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterUsers(func(models.User) bool { return true }), nil
}

func (s *MemoryStore) ListOnlineUsers(_ context.Context, now time.Time, staleAfter time.Duration) ([]models.User, error) {
	staleAfter = normalizeStaleAfter(staleAfter)
	online := func(user models.User) bool { return isOnline(user, now, staleAfter) }

	s.mu.RLock()
	bot, ok := s.users[s.botID]
	if !ok || isOnline(bot, now, staleAfter) {
		defer s.mu.RUnlock()
		return s.filterUsers(online), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if bot, ok := s.users[s.botID]; ok && !isOnline(bot, now, staleAfter) {
		bot.Status = models.UserStatusOnline
		bot.LastSeen = now.UTC()
		s.users[bot.ID] = bot
	}
	return s.filterUsers(online), nil
}

func (s *MemoryStore) ListOfflineUsers(_ context.Context, now time.Time, staleAfter time.Duration) ([]models.User, error) {
	staleAfter = normalizeStaleAfter(staleAfter)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterUsers(func(user models.User) bool {
		return user.ID != s.botID && isOffline(user, now, staleAfter)
	}), nil
}

func (s *MemoryStore) mutateUser(id string, mutate func(user *models.User) error) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err := mutate(&user); err != nil {
		return models.User{}, err
	}
	user.UpdatedAt = s.now()
	s.users[id] = user
	return user, nil
}

func (s *MemoryStore) UpdateUserStatus(_ context.Context, id, status string) (models.User, error) {
	return s.mutateUser(id, func(user *models.User) error {
		user.Status = status
		user.LastSeen = s.now()
		return nil
	})
}

func (s *MemoryStore) UpdateUserProfile(_ context.Context, id, username string, avatar *string) (models.User, error) {
	username = strings.TrimSpace(username)
	return s.mutateUser(id, func(user *models.User) error {
		for _, other := range s.users {
			if other.ID != id && other.Username == username {
				return fmt.Errorf("username %q: %w", username, ErrDuplicateName)
			}
		}
		user.Username = username
		if avatar != nil {
			value := *avatar
			user.Avatar = &value
		}
		return nil
	})
}

func (s *MemoryStore) TouchUser(_ context.Context, id string, seenAt time.Time) (models.User, error) {
	return s.mutateUser(id, func(user *models.User) error {
		user.LastSeen = seenAt.UTC()
		if user.Status == models.UserStatusOffline {
			user.Status = models.UserStatusOnline
		}
		return nil
	})
}

func (s *MemoryStore) SetUserBan(_ context.Context, id string, until *time.Time) (models.User, error) {
	return s.mutateUser(id, func(user *models.User) error {
		if until == nil {
			user.BannedUntil = nil
			return nil
		}
		value := until.UTC()
		user.BannedUntil = &value
		return nil
	})
}

func (s *MemoryStore) SetUserAdmin(_ context.Context, id string, admin bool) (models.User, error) {
	return s.mutateUser(id, func(user *models.User) error {
		user.IsAdmin = admin
		return nil
	})
}

func (s *MemoryStore) CountAdmins(_ context.Context, excludeID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, user := range s.users {
		if user.IsAdmin && user.ID != excludeID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id string) (Purge, error) {
	if id == s.botID {
		return Purge{}, fmt.Errorf("bot account cannot be deleted: %w", ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return Purge{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	purge := s.deleteMessagesLocked(func(message models.Message) bool { return message.UserID == id })

	// Sorted so the outcome of a key clash does not depend on map order.
	roomIDs := make([]string, 0, len(s.rooms))
	for roomID, room := range s.rooms {
		if room.HasParticipant(id) {
			roomIDs = append(roomIDs, roomID)
		}
	}
	sort.Strings(roomIDs)

	for _, roomID := range roomIDs {
		room := cloneRoom(s.rooms[roomID])
		remaining := make([]models.RoomParticipant, 0, len(room.Participants))
		for _, p := range room.Participants {
			if p.UserID != id {
				remaining = append(remaining, p)
			}
		}
		room.Participants = remaining
		if len(remaining) >= models.MinDMParticipants {
			if err := s.rekeyLocked(&room); err == nil {
				s.rooms[roomID] = room
				continue
			}
		}
		purge.add(s.deleteRoomLocked(roomID))
	}

	delete(s.users, id)
	purge.Files = s.unreferencedLocked(purge.Files)
	return purge, nil
}

// Rooms

func (s *MemoryStore) CreateRoom(_ context.Context, input CreateRoomInput) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRoomLocked(input)
}

func (s *MemoryStore) createRoomLocked(input CreateRoomInput) (models.Room, error) {
	name := strings.TrimSpace(input.Name)
	now := s.now()
	room := models.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: input.Description,
		IsDM:        input.IsDM,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if input.IsDM {
		participants := distinctIDs(input.Participants)
		if len(participants) < models.MinDMParticipants || len(participants) > models.MaxDMParticipants {
			return models.Room{}, fmt.Errorf("dm rooms need %d-%d participants, got %d: %w",
				models.MinDMParticipants, models.MaxDMParticipants, len(participants), ErrInvalidState)
		}
		for _, userID := range participants {
			if _, ok := s.users[userID]; !ok {
				return models.Room{}, fmt.Errorf("dm participant %s: %w", userID, ErrInvalidReference)
			}
		}
		key := models.DMKey(participants...)
		if _, ok := s.dmByKeyLocked(key); ok {
			return models.Room{}, fmt.Errorf("dm room for %s: %w", key, ErrDuplicateName)
		}
		room.DMKey = &key
		for i, userID := range participants {
			room.Participants = append(room.Participants, models.RoomParticipant{
				RoomID:    room.ID,
				UserID:    userID,
				Position:  i,
				CreatedAt: now,
			})
		}
	} else {
		for _, existing := range s.rooms {
			if existing.PublicName != nil && *existing.PublicName == name {
				return models.Room{}, fmt.Errorf("room %q: %w", name, ErrDuplicateName)
			}
		}
		room.PublicName = &name
	}

	s.rooms[room.ID] = room
	return cloneRoom(room), nil
}

func (s *MemoryStore) dmByKeyLocked(key string) (models.Room, bool) {
	for _, room := range s.rooms {
		if room.IsDM && room.DMKey != nil && *room.DMKey == key {
			return room, true
		}
	}
	return models.Room{}, false
}

func (s *MemoryStore) GetRoom(_ context.Context, id string) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return models.Room{}, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	return cloneRoom(room), nil
}

func (s *MemoryStore) GetRoomByName(_ context.Context, name string) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name = strings.TrimSpace(name)
	for _, room := range s.rooms {
		if room.PublicName != nil && *room.PublicName == name {
			return cloneRoom(room), nil
		}
	}
	return models.Room{}, fmt.Errorf("room %q: %w", name, ErrNotFound)
}

func (s *MemoryStore) ListPublicRooms(_ context.Context) ([]models.RoomSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live := make(map[string]int64)
	for _, message := range s.messages {
		live[message.RoomID]++
	}

	out := make([]models.RoomSummary, 0, len(s.rooms))
	for _, room := range s.rooms {
		if room.IsDM {
			continue
		}
		out = append(out, models.RoomSummary{Room: cloneRoom(room), LiveCount: live[room.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) IncrementMessageCount(_ context.Context, roomID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustCountLocked(roomID, delta)
}

func (s *MemoryStore) adjustCountLocked(roomID string, delta int64) error {
	room, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	room.MessageCount += delta
	if room.MessageCount < 0 {
		room.MessageCount = 0
	}
	s.rooms[roomID] = room
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, id string) (Purge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return Purge{}, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	purge := s.deleteRoomLocked(id)
	purge.Files = s.unreferencedLocked(purge.Files)
	return purge, nil
}

func (s *MemoryStore) deleteRoomLocked(id string) Purge {
	purge := s.deleteMessagesLocked(func(message models.Message) bool { return message.RoomID == id })
	delete(s.rooms, id)
	return purge
}

func (s *MemoryStore) FindDMRoom(_ context.Context, userA, userB string) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := models.DMKey(userA, userB)
	room, ok := s.dmByKeyLocked(key)
	if !ok {
		return models.Room{}, fmt.Errorf("dm room %s: %w", key, ErrNotFound)
	}
	return cloneRoom(room), nil
}

func (s *MemoryStore) GetOrCreateDMRoom(_ context.Context, userA, userB string) (models.Room, bool, error) {
	if userA == userB {
		return models.Room{}, false, fmt.Errorf("dm needs two distinct users: %w", ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.dmByKeyLocked(models.DMKey(userA, userB)); ok {
		return cloneRoom(room), false, nil
	}

	first, ok := s.users[userA]
	if !ok {
		return models.Room{}, false, fmt.Errorf("dm participant %s: %w", userA, ErrInvalidReference)
	}
	second, ok := s.users[userB]
	if !ok {
		return models.Room{}, false, fmt.Errorf("dm participant %s: %w", userB, ErrInvalidReference)
	}

	room, err := s.createRoomLocked(CreateRoomInput{
		Name:         first.Username + "," + second.Username,
		IsDM:         true,
		Participants: []string{userA, userB},
	})
	if err != nil {
		return models.Room{}, false, err
	}
	return room, true, nil
}

func (s *MemoryStore) ListDMRooms(_ context.Context, userID string) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []models.Room
	for _, room := range s.rooms {
		if room.IsDM && room.HasParticipant(userID) {
			rooms = append(rooms, cloneRoom(room))
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *MemoryStore) rekeyLocked(room *models.Room) error {
	key := models.DMKey(room.ParticipantIDs()...)
	if existing, ok := s.dmByKeyLocked(key); ok && existing.ID != room.ID {
		return fmt.Errorf("dm room for %s: %w", key, ErrDuplicateName)
	}
	room.DMKey = &key
	return nil
}

func (s *MemoryStore) AddDMParticipant(_ context.Context, roomID, userID string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if !room.IsDM {
		return models.Room{}, fmt.Errorf("room %s is not a dm: %w", roomID, ErrInvalidState)
	}
	if room.HasParticipant(userID) {
		return cloneRoom(room), nil
	}
	if len(room.Participants) >= models.MaxDMParticipants {
		return models.Room{}, fmt.Errorf("dm room already has %d participants: %w", models.MaxDMParticipants, ErrInvalidState)
	}
	if _, ok := s.users[userID]; !ok {
		return models.Room{}, fmt.Errorf("participant %s: %w", userID, ErrInvalidReference)
	}

	updated := cloneRoom(room)
	position := 0
	for _, p := range updated.Participants {
		if p.Position >= position {
			position = p.Position + 1
		}
	}
	updated.Participants = append(updated.Participants, models.RoomParticipant{
		RoomID:    roomID,
		UserID:    userID,
		Position:  position,
		CreatedAt: s.now(),
	})
	if err := s.rekeyLocked(&updated); err != nil {
		return models.Room{}, err
	}
	updated.UpdatedAt = s.now()
	s.rooms[roomID] = updated
	return cloneRoom(updated), nil
}

func (s *MemoryStore) RemoveDMParticipant(_ context.Context, roomID, userID string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if !room.IsDM {
		return models.Room{}, fmt.Errorf("room %s is not a dm: %w", roomID, ErrInvalidState)
	}
	if !room.HasParticipant(userID) {
		return models.Room{}, fmt.Errorf("participant %s: %w", userID, ErrNotFound)
	}
	if len(room.Participants)-1 < models.MinDMParticipants {
		return models.Room{}, fmt.Errorf("dm room needs at least %d participants: %w", models.MinDMParticipants, ErrInvalidState)
	}

	updated := room
	updated.Participants = make([]models.RoomParticipant, 0, len(room.Participants)-1)
	for _, p := range room.Participants {
		if p.UserID != userID {
			updated.Participants = append(updated.Participants, p)
		}
	}
	if err := s.rekeyLocked(&updated); err != nil {
		return models.Room{}, err
	}
	updated.UpdatedAt = s.now()
	s.rooms[roomID] = updated
	return cloneRoom(updated), nil
}

// Messages

func (s *MemoryStore) CreateMessage(_ context.Context, input CreateMessageInput) (models.Message, error) {
	messageType := input.Type
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	message := models.Message{
		ID:         uuid.NewString(),
		RoomID:     input.RoomID,
		UserID:     input.UserID,
		Content:    input.Content,
		Type:       messageType,
		FileName:   input.FileName,
		FilePath:   input.FilePath,
		FileSize:   input.FileSize,
		GroupID:    input.GroupID,
		GroupIndex: input.GroupIndex,
		ReplyToID:  input.ReplyToID,
	}
	if err := message.EncodePoll(input.Poll); err != nil {
		return models.Message{}, err
	}
	if err := message.EncodeAttachments(input.Attachments); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[input.RoomID]; !ok {
		return models.Message{}, fmt.Errorf("room %s: %w", input.RoomID, ErrInvalidReference)
	}
	if _, ok := s.users[input.UserID]; !ok {
		return models.Message{}, fmt.Errorf("user %s: %w", input.UserID, ErrInvalidReference)
	}

	message.CreatedAt = s.now()
	s.messages[message.ID] = message
	if err := s.adjustCountLocked(input.RoomID, 1); err != nil {
		return models.Message{}, err
	}

	return s.withAuthor(message), nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[id]
	if !ok {
		return models.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return s.withAuthor(message), nil
}

func messageBefore(a, b models.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *MemoryStore) ListRoomMessages(_ context.Context, roomID string, query MessageQuery) ([]models.Message, error) {
	limit := normalizeLimit(query.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []models.Message
	for _, message := range s.messages {
		if message.RoomID != roomID {
			continue
		}
		if query.Before != nil && !query.Before.IsZero() && !message.CreatedAt.Before(*query.Before) {
			continue
		}
		messages = append(messages, s.withAuthor(message))
	}
	sort.Slice(messages, func(i, j int) bool { return messageBefore(messages[i], messages[j]) })

	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	attachReplies(messages)
	return messages, nil
}

func (s *MemoryStore) UpdateMessageContent(_ context.Context, id, content string, editedAt time.Time) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[id]
	if !ok {
		return models.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	edited := editedAt.UTC()
	message.Content = &content
	message.EditedAt = &edited
	s.messages[id] = message
	return s.withAuthor(message), nil
}

func (s *MemoryStore) UpdatePoll(_ context.Context, id string, mutate func(poll *models.Poll) error) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[id]
	if !ok {
		return models.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	poll, err := message.DecodePoll()
	if err != nil {
		return models.Message{}, err
	}
	if poll == nil {
		return models.Message{}, fmt.Errorf("message %s has no poll: %w", id, ErrInvalidState)
	}
	if err := mutate(poll); err != nil {
		return models.Message{}, err
	}
	if err := message.EncodePoll(poll); err != nil {
		return models.Message{}, err
	}
	s.messages[id] = message
	return s.withAuthor(message), nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[id]
	if !ok {
		return models.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	out := s.withAuthor(message)
	delete(s.messages, id)
	if err := s.adjustCountLocked(message.RoomID, -1); err != nil && !errors.Is(err, ErrNotFound) {
		return models.Message{}, err
	}
	return out, nil
}

func (s *MemoryStore) DeleteMessagesBefore(_ context.Context, cutoff time.Time) (Purge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purge := s.deleteMessagesLocked(func(message models.Message) bool {
		return message.CreatedAt.Before(cutoff)
	})
	purge.Files = s.unreferencedLocked(purge.Files)
	return purge, nil
}

func (s *MemoryStore) deleteMessagesLocked(match func(models.Message) bool) Purge {
	var purge Purge
	for id, message := range s.messages {
		if !match(message) {
			continue
		}
		delete(s.messages, id)
		_ = s.adjustCountLocked(message.RoomID, -1)
		purge.Messages++
		purge.Files = append(purge.Files, message.FilePaths()...)
	}
	return purge
}

func (s *MemoryStore) FileReferenced(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileReferencedLocked(path), nil
}

func (s *MemoryStore) fileReferencedLocked(path string) bool {
	for _, message := range s.messages {
		if message.ReferencesFile(path) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) unreferencedLocked(paths []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		if !s.fileReferencedLocked(path) {
			out = append(out, path)
		}
	}
	return out
}
