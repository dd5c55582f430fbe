package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/gema-chat-api/internal/bootstrap"
	"github.com/noah-isme/gema-chat-api/internal/models"
)

// ensureBot creates the bot account exactly once per guard and returns its id.
func ensureBot(ctx context.Context, users UserStore, opts Options) (string, error) {
	guard := opts.Identity
	if guard == nil {
		guard = bootstrap.NewGuard()
	}

	username := strings.TrimSpace(opts.BotUsername)
	if username == "" {
		username = DefaultBotUsername
	}

	err := guard.Ensure(ctx, func(ctx context.Context) error {
		user, err := users.GetUserByUsername(ctx, username)
		if errors.Is(err, ErrNotFound) {
			_, err = users.CreateUser(ctx, CreateUserInput{
				Username: username,
				Avatar:   opts.BotAvatar,
				Status:   models.UserStatusOnline,
				IsAdmin:  true,
			})
			if errors.Is(err, ErrDuplicateName) {
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		if !user.IsAdmin {
			if _, err := users.SetUserAdmin(ctx, user.ID, true); err != nil {
				return err
			}
		}
		if user.Status != models.UserStatusOnline {
			if _, err := users.UpdateUserStatus(ctx, user.ID, models.UserStatusOnline); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ensure bot account: %w", err)
	}

	bot, err := users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("load bot account %q: %w", username, err)
	}
	return bot.ID, nil
}
