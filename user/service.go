package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Directory abstracts repository operations for the service.
type Directory interface {
	GetByID(ctx context.Context, id string) (User, error)
	GetActiveByChatID(ctx context.Context, chatID int64) (User, error)
	GetActiveByNickname(ctx context.Context, nickname string) (User, error)
	ListActiveByRole(ctx context.Context, role Role) ([]User, error)
	Create(ctx context.Context, params CreateParams) (User, error)
	Deactivate(ctx context.Context, nickname string, role Role) (User, error)
	UpdateNickname(ctx context.Context, id, nickname string) error
	UpdateChatID(ctx context.Context, id string, chatID int64) error
	SetBotState(ctx context.Context, id, state string) error
}

var (
	// ErrUnknown signals the inbound sender is not a registered participant.
	ErrUnknown = errors.New("user: unknown sender")
	// ErrBadNickname signals the nickname does not match the accepted shape.
	ErrBadNickname = errors.New("user: nickname must be 5-32 word characters")
)

// Service owns identity resolution and the administrative participant lifecycle.
type Service struct {
	repo        Directory
	idGenerator func() string
}

func NewService(repo Directory) *Service {
	return &Service{
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Identify resolves the inbound sender to a registered participant, channel
// id first with nickname fallback, and reconciles whichever identifier
// drifted since last contact. Strangers yield ErrUnknown.
func (s *Service) Identify(ctx context.Context, chatID int64, nickname string) (User, error) {
	u, err := s.repo.GetActiveByChatID(ctx, chatID)
	switch {
	case err == nil:
		if nickname != "" && u.Nickname != nickname {
			if err := s.repo.UpdateNickname(ctx, u.ID, nickname); err != nil {
				return User{}, err
			}
			u.Nickname = nickname
		}
		return u, nil
	case !errors.Is(err, ErrNotFound):
		return User{}, err
	}

	u, err = s.repo.GetActiveByNickname(ctx, nickname)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrUnknown
		}
		return User{}, err
	}
	if u.ChatID == nil || *u.ChatID != chatID {
		if err := s.repo.UpdateChatID(ctx, u.ID, chatID); err != nil {
			return User{}, err
		}
		u.ChatID = &chatID
	}
	return u, nil
}

// Add registers a new active participant. Clients require a tariff.
func (s *Service) Add(ctx context.Context, nickname string, role Role, tariffID *string) (User, error) {
	if !NicknameRe.MatchString(nickname) {
		return User{}, ErrBadNickname
	}
	if !ValidRole(role) {
		return User{}, fmt.Errorf("user: invalid role %q", role)
	}
	if role == RoleClient && tariffID == nil {
		return User{}, fmt.Errorf("user: client requires a tariff")
	}

	return s.repo.Create(ctx, CreateParams{
		ID:       s.idGenerator(),
		Nickname: nickname,
		Role:     role,
		TariffID: tariffID,
	})
}

// Deactivate retires a participant. The returned user lets callers release
// any orders the participant still holds.
func (s *Service) Deactivate(ctx context.Context, nickname string, role Role) (User, error) {
	return s.repo.Deactivate(ctx, nickname, role)
}

// GetByID fetches one participant.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// ListActiveByRole exposes the directory listing used for digests and
// contractor notifications.
func (s *Service) ListActiveByRole(ctx context.Context, role Role) ([]User, error) {
	return s.repo.ListActiveByRole(ctx, role)
}

// SetBotState persists the next conversation state after a turn.
func (s *Service) SetBotState(ctx context.Context, id, state string) error {
	return s.repo.SetBotState(ctx, id, state)
}
