package models

import (
	"errors"
	"time"

	goval "github.com/go-passwd/validator"
	"golang.org/x/crypto/bcrypt"
)

// User is owned by the auth/profile subsystem; the messaging core only reads
// it (identity, display fields, presence).
type User struct {
	Model
	Username       string    `json:"username" gorm:"uniqueIndex;not null" binding:"required,min=2"`
	DisplayName    string    `json:"display_name" conform:"trim"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null" binding:"required,email"`
	Password       string    `json:"password,omitempty" gorm:"-"`
	HashedPassword string    `json:"-"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	DeviceToken    string    `json:"-"`
	Online         bool      `json:"online" gorm:"default:false"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// UserSummary is the read-only collaborator shape handed to the UI.
type UserSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Online      bool   `json:"online"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Online:      u.Online,
	}
}

type SignupRequest struct {
	Username    string `json:"username" binding:"required,min=2" conform:"trim"`
	DisplayName string `json:"display_name" conform:"trim"`
	Email       string `json:"email" binding:"required,email" conform:"trim,lower"`
	Password    string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" conform:"trim,lower"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	User        UserSummary `json:"user"`
}

func ValidatePassword(password string) error {
	passwordValidator := goval.New(goval.MinLength(6, errors.New("password cant be less than 6 characters")),
		goval.MaxLength(64, errors.New("password cant be more than 64 characters")))
	return passwordValidator.Validate(password)
}

func (u *User) HashPassword() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.HashedPassword = string(hash)
	u.Password = ""
	return nil
}

func (u *User) VerifyPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
}
