package handlers

import (
	"time"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
)

type userDTO struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Gender      string    `json:"gender"`
	PhoneNumber string    `json:"phone_number"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUserDTO(u *entity.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Gender:      string(u.Gender),
		PhoneNumber: u.PhoneNumber,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func toUserDTOs(users []entity.User) []userDTO {
	out := make([]userDTO, 0, len(users))
	for i := range users {
		out = append(out, toUserDTO(&users[i]))
	}
	return out
}

type friendshipDTO struct {
	ID        int64     `json:"id"`
	FromUser  int64     `json:"from_user"`
	ToUser    int64     `json:"to_user"`
	CreatedAt time.Time `json:"created_at"`
	Accepted  bool      `json:"accepted"`
}

func toFriendshipDTO(f *entity.Friendship) friendshipDTO {
	return friendshipDTO{
		ID:        f.ID,
		FromUser:  f.FromUserID,
		ToUser:    f.ToUserID,
		CreatedAt: f.CreatedAt,
		Accepted:  f.Accepted,
	}
}

func toFriendshipDTOs(fs []entity.Friendship) []friendshipDTO {
	out := make([]friendshipDTO, 0, len(fs))
	for i := range fs {
		out = append(out, toFriendshipDTO(&fs[i]))
	}
	return out
}
