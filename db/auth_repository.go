package db

import (
	"time"

	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"gorm.io/gorm"
)

// AuthRepository is the messaging core's view of the auth/profile
// subsystem: identity lookups, recipient search, presence.
type AuthRepository interface {
	CreateUser(user *models.User) (*models.User, error)
	FindUserByID(id uint) (*models.User, error)
	FindUserByEmail(email string) (*models.User, error)
	SearchUsers(query string, excludeID uint, limit int) ([]models.User, error)
	SetUserOnline(userID uint, online bool) error
}

type authRepo struct {
	DB *gorm.DB
}

func NewAuthRepo(db *GormDB) AuthRepository {
	return &authRepo{db.DB}
}

func (a *authRepo) CreateUser(user *models.User) (*models.User, error) {
	if err := a.DB.Create(user).Error; err != nil {
		return nil, apiError.FromGorm(err, "email or username already taken")
	}
	return user, nil
}

func (a *authRepo) FindUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := a.DB.First(&user, "id = ?", id).Error; err != nil {
		return nil, apiError.FromGorm(err, "user not found")
	}
	return &user, nil
}

func (a *authRepo) FindUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := a.DB.First(&user, "email = ?", email).Error; err != nil {
		return nil, apiError.FromGorm(err, "user not found")
	}
	return &user, nil
}

// SearchUsers matches username or display name, excluding the requester.
// Used to pick a recipient when starting a new conversation.
func (a *authRepo) SearchUsers(query string, excludeID uint, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	var users []models.User
	pattern := "%" + query + "%"
	err := a.DB.
		Where("id <> ?", excludeID).
		Where("username ILIKE ? OR display_name ILIKE ?", pattern, pattern).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, apiError.FromGorm(err, "unable to search users")
	}
	return users, nil
}

func (a *authRepo) SetUserOnline(userID uint, online bool) error {
	err := a.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"online":       online,
			"last_seen_at": time.Now(),
		}).Error
	if err != nil {
		return apiError.FromGorm(err, "unable to update presence")
	}
	return nil
}
