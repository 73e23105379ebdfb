package services

import (
	"net/http"

	"github.com/BigOnwer/Gusen-App/config"
	"github.com/BigOnwer/Gusen-App/db"
	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/BigOnwer/Gusen-App/services/jwt"
)

// AuthService is the thin identity collaborator the messaging core consumes.
// OAuth and auth-code flows live elsewhere.
type AuthService interface {
	SignupUser(request *models.SignupRequest) (*models.User, *apiError.Error)
	LoginUser(request *models.LoginRequest) (*models.LoginResponse, *apiError.Error)
	GetCurrentUser(userID uint) (*models.User, *apiError.Error)
	SearchUsers(query string, excludeID uint) ([]models.UserSummary, *apiError.Error)
}

type authService struct {
	Config   *config.Config
	authRepo db.AuthRepository
}

func NewAuthService(authRepo db.AuthRepository, conf *config.Config) AuthService {
	return &authService{
		Config:   conf,
		authRepo: authRepo,
	}
}

func (s *authService) SignupUser(request *models.SignupRequest) (*models.User, *apiError.Error) {
	if err := models.ValidatePassword(request.Password); err != nil {
		return nil, apiError.ValidationError(err.Error())
	}

	user := &models.User{
		Username:    request.Username,
		DisplayName: request.DisplayName,
		Email:       request.Email,
		Password:    request.Password,
	}
	if err := user.HashPassword(); err != nil {
		return nil, apiError.New("unable to hash password", http.StatusInternalServerError)
	}

	created, err := s.authRepo.CreateUser(user)
	if err != nil {
		return nil, apiError.FromGorm(err, "email or username already taken")
	}
	return created, nil
}

func (s *authService) LoginUser(request *models.LoginRequest) (*models.LoginResponse, *apiError.Error) {
	user, err := s.authRepo.FindUserByEmail(request.Email)
	if err != nil {
		return nil, apiError.New("invalid credentials", http.StatusUnauthorized)
	}
	if err := user.VerifyPassword(request.Password); err != nil {
		return nil, apiError.New("invalid credentials", http.StatusUnauthorized)
	}

	token, tokenErr := jwt.GenerateToken(user.ID, s.Config.JWTSecret)
	if tokenErr != nil {
		return nil, apiError.New("unable to issue token", http.StatusInternalServerError)
	}

	// Presence is advisory; a failed update must not block login.
	_ = s.authRepo.SetUserOnline(user.ID, true)

	return &models.LoginResponse{
		AccessToken: token,
		User:        user.Summary(),
	}, nil
}

func (s *authService) GetCurrentUser(userID uint) (*models.User, *apiError.Error) {
	user, err := s.authRepo.FindUserByID(userID)
	if err != nil {
		return nil, apiError.FromGorm(err, "user not found")
	}
	return user, nil
}

func (s *authService) SearchUsers(query string, excludeID uint) ([]models.UserSummary, *apiError.Error) {
	users, err := s.authRepo.SearchUsers(query, excludeID, 20)
	if err != nil {
		return nil, apiError.FromGorm(err, "unable to search users")
	}
	summaries := make([]models.UserSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, users[i].Summary())
	}
	return summaries, nil
}
