package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-chat-api/internal/models"
)

// GormStore is the relational Store backed by GORM. It runs on PostgreSQL in
// production and SQLite in tests.
type GormStore struct {
	db    *gorm.DB
	botID string
	now   func() time.Time
}

// Migrate creates or updates the chat schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Room{}, &models.RoomParticipant{}, &models.Message{})
}

// NewGormStore constructs a GORM-backed store and ensures the bot account.
func NewGormStore(ctx context.Context, db *gorm.DB, opts Options) (*GormStore, error) {
	store := &GormStore{db: db, now: opts.clock()}

	botID, err := ensureBot(ctx, store, opts)
	if err != nil {
		return nil, err
	}
	store.botID = botID

	return store, nil
}

func (s *GormStore) BotID() string {
	return s.botID
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateName
	default:
		return err
	}
}

// forUpdate adds a row lock where the dialect supports one.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// Users

func (s *GormStore) CreateUser(ctx context.Context, input CreateUserInput) (models.User, error) {
	status := input.Status
	if status == "" {
		status = models.UserStatusOnline
	}
	now := s.now()

	user := models.User{
		Username: strings.TrimSpace(input.Username),
		Avatar:   input.Avatar,
		Status:   status,
		IsAdmin:  input.IsAdmin,
		LastSeen: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("username %q: %w", user.Username, ErrDuplicateName)
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return models.User{}, translateError(err)
	}

	return user, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.getUser(s.db.WithContext(ctx), id)
}

func (s *GormStore) getUser(tx *gorm.DB, id string) (models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormStore) ListOnlineUsers(ctx context.Context, now time.Time, staleAfter time.Duration) ([]models.User, error) {
	staleAfter = normalizeStaleAfter(staleAfter)
	now = now.UTC()

	var users []models.User
	err := s.db.WithContext(ctx).
		Where("status = ?", models.UserStatusOnline).
		Where("last_seen >= ?", now.Add(-staleAfter)).
		Where("(banned_until IS NULL OR banned_until <= ?)", now).
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	for _, user := range users {
		if user.ID == s.botID {
			return users, nil
		}
	}

	bot, err := s.healBot(ctx, now)
	if err != nil {
		return nil, err
	}
	users = append(users, bot)
	sort.SliceStable(users, func(i, j int) bool { return users[i].Username < users[j].Username })

	return users, nil
}

// healBot reports the bot as online, rewriting its stored presence when it
// drifted.
func (s *GormStore) healBot(ctx context.Context, now time.Time) (models.User, error) {
	bot, err := s.GetUser(ctx, s.botID)
	if err != nil {
		return models.User{}, err
	}
	if bot.Status != models.UserStatusOnline || bot.LastSeen.Before(now) {
		err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", bot.ID).
			Updates(map[string]interface{}{"status": models.UserStatusOnline, "last_seen": now}).Error
		if err != nil {
			return models.User{}, err
		}
		bot.Status = models.UserStatusOnline
		bot.LastSeen = now
	}
	return bot, nil
}

func (s *GormStore) ListOfflineUsers(ctx context.Context, now time.Time, staleAfter time.Duration) ([]models.User, error) {
	staleAfter = normalizeStaleAfter(staleAfter)
	now = now.UTC()

	var users []models.User
	err := s.db.WithContext(ctx).
		Where("(status = ? OR last_seen < ?)", models.UserStatusOffline, now.Add(-staleAfter)).
		Where("(banned_until IS NULL OR banned_until <= ?)", now).
		Where("id <> ?", s.botID).
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormStore) updateUser(ctx context.Context, id string, values map[string]interface{}) (models.User, error) {
	db := s.db.WithContext(ctx)
	result := db.Model(&models.User{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return models.User{}, translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return s.getUser(db, id)
}

func (s *GormStore) UpdateUserStatus(ctx context.Context, id, status string) (models.User, error) {
	return s.updateUser(ctx, id, map[string]interface{}{"status": status, "last_seen": s.now()})
}

func (s *GormStore) UpdateUserProfile(ctx context.Context, id, username string, avatar *string) (models.User, error) {
	username = strings.TrimSpace(username)

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.getUser(forUpdate(tx), id)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.User{}).Where("username = ? AND id <> ?", username, id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("username %q: %w", username, ErrDuplicateName)
		}

		values := map[string]interface{}{"username": username}
		if avatar != nil {
			values["avatar"] = *avatar
		}
		if err := tx.Model(&models.User{}).Where("id = ?", current.ID).Updates(values).Error; err != nil {
			return err
		}

		user, err = s.getUser(tx, id)
		return err
	})
	if err != nil {
		return models.User{}, translateError(err)
	}
	return user, nil
}

func (s *GormStore) TouchUser(ctx context.Context, id string, seenAt time.Time) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.getUser(forUpdate(tx), id)
		if err != nil {
			return err
		}
		values := map[string]interface{}{"last_seen": seenAt.UTC()}
		if current.Status == models.UserStatusOffline {
			values["status"] = models.UserStatusOnline
		}
		if err := tx.Model(&models.User{}).Where("id = ?", id).Updates(values).Error; err != nil {
			return err
		}
		user, err = s.getUser(tx, id)
		return err
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *GormStore) SetUserBan(ctx context.Context, id string, until *time.Time) (models.User, error) {
	var value interface{}
	if until != nil {
		value = until.UTC()
	}
	return s.updateUser(ctx, id, map[string]interface{}{"banned_until": value})
}

func (s *GormStore) SetUserAdmin(ctx context.Context, id string, admin bool) (models.User, error) {
	return s.updateUser(ctx, id, map[string]interface{}{"is_admin": admin})
}

func (s *GormStore) CountAdmins(ctx context.Context, excludeID string) (int64, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.User{}).Where("is_admin = ?", true)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteUser removes the user together with their messages and DM
// memberships. DM rooms left with fewer than two members are removed, and so
// is a group that shrinks onto the member set of an existing DM.
func (s *GormStore) DeleteUser(ctx context.Context, id string) (Purge, error) {
	if id == s.botID {
		return Purge{}, fmt.Errorf("bot account cannot be deleted: %w", ErrInvalidState)
	}

	var purge Purge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.getUser(tx, id); err != nil {
			return err
		}

		removed, err := s.deleteMessages(tx, "user_id = ?", id)
		if err != nil {
			return err
		}
		purge.add(removed)

		var roomIDs []string
		if err := tx.Model(&models.RoomParticipant{}).Where("user_id = ?", id).Pluck("room_id", &roomIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.RoomParticipant{}).Error; err != nil {
			return err
		}

		for _, roomID := range roomIDs {
			room, err := s.loadRoom(tx, roomID)
			if err != nil {
				return err
			}
			if len(room.Participants) >= models.MinDMParticipants {
				err := s.rekeyDM(tx, room)
				if err == nil {
					continue
				}
				if !errors.Is(err, ErrDuplicateName) {
					return err
				}
			}
			removed, err := s.deleteRoom(tx, roomID)
			if err != nil {
				return err
			}
			purge.add(removed)
		}

		if err := tx.Delete(&models.User{}, "id = ?", id).Error; err != nil {
			return err
		}
		purge.Files, err = s.unreferencedFiles(tx, purge.Files)
		return err
	})
	if err != nil {
		return Purge{}, err
	}
	return purge, nil
}

// Rooms

func (s *GormStore) CreateRoom(ctx context.Context, input CreateRoomInput) (models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		room, err = s.createRoom(tx, input)
		return err
	})
	if err != nil {
		return models.Room{}, translateError(err)
	}
	return room, nil
}

func (s *GormStore) createRoom(tx *gorm.DB, input CreateRoomInput) (models.Room, error) {
	name := strings.TrimSpace(input.Name)
	room := models.Room{
		Name:        name,
		Description: input.Description,
		IsDM:        input.IsDM,
	}

	var participants []string
	if input.IsDM {
		participants = distinctIDs(input.Participants)
		if len(participants) < models.MinDMParticipants || len(participants) > models.MaxDMParticipants {
			return models.Room{}, fmt.Errorf("dm rooms need %d-%d participants, got %d: %w",
				models.MinDMParticipants, models.MaxDMParticipants, len(participants), ErrInvalidState)
		}

		var found int64
		if err := tx.Model(&models.User{}).Where("id IN ?", participants).Count(&found).Error; err != nil {
			return models.Room{}, err
		}
		if int(found) != len(participants) {
			return models.Room{}, fmt.Errorf("dm participant missing: %w", ErrInvalidReference)
		}

		key := models.DMKey(participants...)
		var existing int64
		if err := tx.Model(&models.Room{}).Where("dm_key = ?", key).Count(&existing).Error; err != nil {
			return models.Room{}, err
		}
		if existing > 0 {
			return models.Room{}, fmt.Errorf("dm room for %s: %w", key, ErrDuplicateName)
		}
		room.DMKey = &key
	} else {
		var existing int64
		if err := tx.Model(&models.Room{}).Where("public_name = ?", name).Count(&existing).Error; err != nil {
			return models.Room{}, err
		}
		if existing > 0 {
			return models.Room{}, fmt.Errorf("room %q: %w", name, ErrDuplicateName)
		}
		room.PublicName = &name
	}

	if err := tx.Omit(clause.Associations).Create(&room).Error; err != nil {
		return models.Room{}, err
	}

	if len(participants) > 0 {
		rows := make([]models.RoomParticipant, 0, len(participants))
		for i, userID := range participants {
			rows = append(rows, models.RoomParticipant{RoomID: room.ID, UserID: userID, Position: i})
		}
		if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
			return models.Room{}, err
		}
		room.Participants = rows
	}

	return room, nil
}

func (s *GormStore) loadRoom(tx *gorm.DB, id string) (models.Room, error) {
	var room models.Room
	err := tx.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&room, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, fmt.Errorf("room %s: %w", id, ErrNotFound)
		}
		return models.Room{}, err
	}
	return room, nil
}

func (s *GormStore) GetRoom(ctx context.Context, id string) (models.Room, error) {
	return s.loadRoom(s.db.WithContext(ctx), id)
}

func (s *GormStore) GetRoomByName(ctx context.Context, name string) (models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, "public_name = ?", strings.TrimSpace(name)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, fmt.Errorf("room %q: %w", name, ErrNotFound)
		}
		return models.Room{}, err
	}
	return room, nil
}

func (s *GormStore) ListPublicRooms(ctx context.Context) ([]models.RoomSummary, error) {
	db := s.db.WithContext(ctx)

	var rooms []models.Room
	if err := db.Where("is_dm = ?", false).Order("name ASC").Find(&rooms).Error; err != nil {
		return nil, err
	}

	type roomCount struct {
		RoomID string
		Total  int64
	}
	var counts []roomCount
	if err := db.Model(&models.Message{}).
		Select("room_id, COUNT(*) AS total").
		Group("room_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	live := make(map[string]int64, len(counts))
	for _, c := range counts {
		live[c.RoomID] = c.Total
	}

	out := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, models.RoomSummary{Room: room, LiveCount: live[room.ID]})
	}
	return out, nil
}

func (s *GormStore) IncrementMessageCount(ctx context.Context, roomID string, delta int64) error {
	return adjustMessageCount(s.db.WithContext(ctx), roomID, delta)
}

func adjustMessageCount(tx *gorm.DB, roomID string, delta int64) error {
	result := tx.Model(&models.Room{}).Where("id = ?", roomID).
		UpdateColumn("message_count", gorm.Expr("CASE WHEN message_count + ? < 0 THEN 0 ELSE message_count + ? END", delta, delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) DeleteRoom(ctx context.Context, id string) (Purge, error) {
	var purge Purge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		purge, err = s.deleteRoom(tx, id)
		if err != nil {
			return err
		}
		purge.Files, err = s.unreferencedFiles(tx, purge.Files)
		return err
	})
	if err != nil {
		return Purge{}, err
	}
	return purge, nil
}

func (s *GormStore) deleteRoom(tx *gorm.DB, id string) (Purge, error) {
	purge, err := s.deleteMessages(tx, "room_id = ?", id)
	if err != nil {
		return Purge{}, err
	}
	if err := tx.Where("room_id = ?", id).Delete(&models.RoomParticipant{}).Error; err != nil {
		return Purge{}, err
	}
	result := tx.Delete(&models.Room{}, "id = ?", id)
	if result.Error != nil {
		return Purge{}, result.Error
	}
	if result.RowsAffected == 0 {
		return Purge{}, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	return purge, nil
}

func (s *GormStore) FindDMRoom(ctx context.Context, userA, userB string) (models.Room, error) {
	return s.findDMByKey(s.db.WithContext(ctx), models.DMKey(userA, userB))
}

func (s *GormStore) findDMByKey(tx *gorm.DB, key string) (models.Room, error) {
	var room models.Room
	err := tx.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&room, "dm_key = ? AND is_dm = ?", key, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, fmt.Errorf("dm room %s: %w", key, ErrNotFound)
		}
		return models.Room{}, err
	}
	return room, nil
}

func (s *GormStore) GetOrCreateDMRoom(ctx context.Context, userA, userB string) (models.Room, bool, error) {
	if userA == userB {
		return models.Room{}, false, fmt.Errorf("dm needs two distinct users: %w", ErrInvalidState)
	}

	room, err := s.FindDMRoom(ctx, userA, userB)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.Room{}, false, err
	}

	first, err := s.GetUser(ctx, userA)
	if err != nil {
		return models.Room{}, false, fmt.Errorf("dm participant %s: %w", userA, ErrInvalidReference)
	}
	second, err := s.GetUser(ctx, userB)
	if err != nil {
		return models.Room{}, false, fmt.Errorf("dm participant %s: %w", userB, ErrInvalidReference)
	}

	room, err = s.CreateRoom(ctx, CreateRoomInput{
		Name:         first.Username + "," + second.Username,
		IsDM:         true,
		Participants: []string{userA, userB},
	})
	if errors.Is(err, ErrDuplicateName) {
		// Lost a creation race; the winner's room is the answer.
		room, err = s.FindDMRoom(ctx, userA, userB)
		return room, false, err
	}
	if err != nil {
		return models.Room{}, false, err
	}
	return room, true, nil
}

func (s *GormStore) ListDMRooms(ctx context.Context, userID string) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("is_dm = ?", true).
		Where("id IN (?)", s.db.Model(&models.RoomParticipant{}).Select("room_id").Where("user_id = ?", userID)).
		Order("created_at ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *GormStore) rekeyDM(tx *gorm.DB, room models.Room) error {
	key := models.DMKey(room.ParticipantIDs()...)

	var clash int64
	if err := tx.Model(&models.Room{}).Where("dm_key = ? AND id <> ?", key, room.ID).Count(&clash).Error; err != nil {
		return err
	}
	if clash > 0 {
		return fmt.Errorf("dm room for %s: %w", key, ErrDuplicateName)
	}

	return tx.Model(&models.Room{}).Where("id = ?", room.ID).Update("dm_key", key).Error
}

func (s *GormStore) AddDMParticipant(ctx context.Context, roomID, userID string) (models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		room, err = s.loadRoom(forUpdate(tx), roomID)
		if err != nil {
			return err
		}
		if !room.IsDM {
			return fmt.Errorf("room %s is not a dm: %w", roomID, ErrInvalidState)
		}
		if room.HasParticipant(userID) {
			return nil
		}
		if len(room.Participants) >= models.MaxDMParticipants {
			return fmt.Errorf("dm room already has %d participants: %w", models.MaxDMParticipants, ErrInvalidState)
		}
		if _, err := s.getUser(tx, userID); err != nil {
			return fmt.Errorf("participant %s: %w", userID, ErrInvalidReference)
		}

		position := 0
		for _, p := range room.Participants {
			if p.Position >= position {
				position = p.Position + 1
			}
		}
		row := models.RoomParticipant{RoomID: roomID, UserID: userID, Position: position}
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return err
		}
		room.Participants = append(room.Participants, row)

		if err := s.rekeyDM(tx, room); err != nil {
			return err
		}
		room, err = s.loadRoom(tx, roomID)
		return err
	})
	if err != nil {
		return models.Room{}, translateError(err)
	}
	return room, nil
}

func (s *GormStore) RemoveDMParticipant(ctx context.Context, roomID, userID string) (models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		room, err = s.loadRoom(forUpdate(tx), roomID)
		if err != nil {
			return err
		}
		if !room.IsDM {
			return fmt.Errorf("room %s is not a dm: %w", roomID, ErrInvalidState)
		}
		if !room.HasParticipant(userID) {
			return fmt.Errorf("participant %s: %w", userID, ErrNotFound)
		}
		if len(room.Participants)-1 < models.MinDMParticipants {
			return fmt.Errorf("dm room needs at least %d participants: %w", models.MinDMParticipants, ErrInvalidState)
		}

		if err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&models.RoomParticipant{}).Error; err != nil {
			return err
		}
		remaining := room.Participants[:0]
		for _, p := range room.Participants {
			if p.UserID != userID {
				remaining = append(remaining, p)
			}
		}
		room.Participants = remaining

		if err := s.rekeyDM(tx, room); err != nil {
			return err
		}
		room, err = s.loadRoom(tx, roomID)
		return err
	})
	if err != nil {
		return models.Room{}, translateError(err)
	}
	return room, nil
}

// Messages

func (s *GormStore) CreateMessage(ctx context.Context, input CreateMessageInput) (models.Message, error) {
	messageType := input.Type
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	message := models.Message{
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
		CreatedAt:  s.now(),
	}
	if err := message.EncodePoll(input.Poll); err != nil {
		return models.Message{}, err
	}
	if err := message.EncodeAttachments(input.Attachments); err != nil {
		return models.Message{}, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rooms int64
		if err := tx.Model(&models.Room{}).Where("id = ?", input.RoomID).Count(&rooms).Error; err != nil {
			return err
		}
		if rooms == 0 {
			return fmt.Errorf("room %s: %w", input.RoomID, ErrInvalidReference)
		}

		author, err := s.getUser(tx, input.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("user %s: %w", input.UserID, ErrInvalidReference)
			}
			return err
		}

		if err := tx.Omit(clause.Associations).Create(&message).Error; err != nil {
			return err
		}
		if err := adjustMessageCount(tx, input.RoomID, 1); err != nil {
			return err
		}
		message.User = &author
		return nil
	})
	if err != nil {
		return models.Message{}, translateError(err)
	}

	return message, nil
}

func (s *GormStore) getMessage(tx *gorm.DB, id string) (models.Message, error) {
	var message models.Message
	if err := tx.Preload("User").First(&message, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return models.Message{}, err
	}
	return message, nil
}

func (s *GormStore) GetMessage(ctx context.Context, id string) (models.Message, error) {
	return s.getMessage(s.db.WithContext(ctx), id)
}

func (s *GormStore) ListRoomMessages(ctx context.Context, roomID string, query MessageQuery) ([]models.Message, error) {
	limit := normalizeLimit(query.Limit)

	db := s.db.WithContext(ctx).Preload("User").Where("room_id = ?", roomID)
	if query.Before != nil && !query.Before.IsZero() {
		db = db.Where("created_at < ?", *query.Before)
	}

	var messages []models.Message
	if err := db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	attachReplies(messages)
	return messages, nil
}

func (s *GormStore) UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) (models.Message, error) {
	var message models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).Where("id = ?", id).
			Updates(map[string]interface{}{"content": content, "edited_at": editedAt.UTC()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		var err error
		message, err = s.getMessage(tx, id)
		return err
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (s *GormStore) UpdatePoll(ctx context.Context, id string, mutate func(poll *models.Poll) error) (models.Message, error) {
	var message models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		message, err = s.getMessage(forUpdate(tx), id)
		if err != nil {
			return err
		}
		poll, err := message.DecodePoll()
		if err != nil {
			return err
		}
		if poll == nil {
			return fmt.Errorf("message %s has no poll: %w", id, ErrInvalidState)
		}
		if err := mutate(poll); err != nil {
			return err
		}
		if err := message.EncodePoll(poll); err != nil {
			return err
		}
		return tx.Model(&models.Message{}).Where("id = ?", id).Update("poll", message.Poll).Error
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (s *GormStore) DeleteMessage(ctx context.Context, id string) (models.Message, error) {
	var message models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		message, err = s.getMessage(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Message{}, "id = ?", id).Error; err != nil {
			return err
		}
		return adjustMessageCount(tx, message.RoomID, -1)
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (s *GormStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (Purge, error) {
	var purge Purge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		purge, err = s.deleteMessages(tx, "created_at < ?", cutoff.UTC())
		if err != nil {
			return err
		}
		purge.Files, err = s.unreferencedFiles(tx, purge.Files)
		return err
	})
	if err != nil {
		return Purge{}, err
	}
	return purge, nil
}

func (s *GormStore) FileReferenced(ctx context.Context, path string) (bool, error) {
	return s.fileReferenced(s.db.WithContext(ctx), path)
}

func (s *GormStore) fileReferenced(tx *gorm.DB, path string) (bool, error) {
	var direct int64
	if err := tx.Model(&models.Message{}).Where("file_path = ?", path).Count(&direct).Error; err != nil {
		return false, err
	}
	if direct > 0 {
		return true, nil
	}

	var candidates []models.Message
	err := tx.Select("id", "attachments").
		Where("attachments IS NOT NULL").
		Where("CAST(attachments AS TEXT) LIKE ?", models.AttachmentPathPattern(path)).
		Find(&candidates).Error
	if err != nil {
		return false, err
	}
	for _, candidate := range candidates {
		if candidate.ReferencesFile(path) {
			return true, nil
		}
	}
	return false, nil
}

// unreferencedFiles keeps the distinct paths no remaining message carries.
func (s *GormStore) unreferencedFiles(tx *gorm.DB, paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		referenced, err := s.fileReferenced(tx, path)
		if err != nil {
			return nil, err
		}
		if !referenced {
			out = append(out, path)
		}
	}
	return out, nil
}

// deleteMessages deletes matching messages and decrements each affected
// room's counter by its share.
func (s *GormStore) deleteMessages(tx *gorm.DB, query string, args ...interface{}) (Purge, error) {
	type roomCount struct {
		RoomID string
		Total  int64
	}
	var counts []roomCount
	if err := tx.Model(&models.Message{}).
		Select("room_id, COUNT(*) AS total").
		Where(query, args...).
		Group("room_id").
		Scan(&counts).Error; err != nil {
		return Purge{}, err
	}
	if len(counts) == 0 {
		return Purge{}, nil
	}

	var carriers []models.Message
	if err := tx.Select("id", "file_path", "attachments").
		Where(query, args...).
		Where("(file_path IS NOT NULL OR attachments IS NOT NULL)").
		Find(&carriers).Error; err != nil {
		return Purge{}, err
	}

	result := tx.Where(query, args...).Delete(&models.Message{})
	if result.Error != nil {
		return Purge{}, result.Error
	}

	for _, c := range counts {
		if err := adjustMessageCount(tx, c.RoomID, -c.Total); err != nil && !errors.Is(err, ErrNotFound) {
			return Purge{}, err
		}
	}
	return Purge{Messages: result.RowsAffected, Files: filePaths(carriers)}, nil
}
