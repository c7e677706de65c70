package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/internal/dtos"
	"github.com/Gopher0727/GroupChat/internal/models"
	"github.com/Gopher0727/GroupChat/internal/repositories"
	"github.com/Gopher0727/GroupChat/internal/utils"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// 用户列表上限
const userListCap = 100

// TokenIssuer 登录成功后签发令牌
type TokenIssuer interface {
	GenerateToken(sub jwt.Subject) (string, error)
}

type UserService struct {
	users  repositories.UserRepository
	tokens TokenIssuer
	ids    IDGenerator
	log    *logger.Logger
}

func NewUserService(users repositories.UserRepository, tokens TokenIssuer, ids IDGenerator, log *logger.Logger) *UserService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &UserService{users: users, tokens: tokens, ids: ids, log: log.Named("users")}
}

type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest 字段缺省表示不修改
type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	Username    *string `json:"username"`
	AvatarURL   *string `json:"avatarUrl"`
}

type AuthResponse struct {
	User  *dtos.User `json:"user"`
	Token string     `json:"token"`
}

// Signup 注册并直接返回令牌
func (s *UserService) Signup(ctx context.Context, req *SignupRequest) (*AuthResponse, error) {
	email := utils.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrMissingParams
	}
	if !utils.ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}
	user := &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Username:     strings.TrimSpace(req.Username),
	}

	// 唯一性以存储层约束为准, 不做先查后写
	if err := s.users.Create(ctx, user); err != nil {
		var dup *repositories.DuplicateError
		if errors.As(err, &dup) {
			return nil, ErrConflict(dup.Fields...)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.InfoContext(ctx, "user signed up", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login 邮箱密码登录
func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	email := utils.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrMissingParams
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Me 当前用户资料, 含已加入的房间
func (s *UserService) Me(ctx context.Context, userID string) (*dtos.User, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return dtos.NewUser(user), nil
}

// UpdateMe 修改个人资料, 已加入房间列表不可由客户端修改
func (s *UserService) UpdateMe(ctx context.Context, userID string, req *UpdateProfileRequest) (*dtos.User, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	upd := models.ProfileUpdate{
		DisplayName: trimPtr(req.DisplayName),
		Username:    trimPtr(req.Username),
		AvatarURL:   trimPtr(req.AvatarURL),
	}
	user, err := s.users.UpdateProfile(ctx, userID, upd)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return dtos.NewUser(user), nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]dtos.PublicUser, error) {
	users, err := s.users.List(ctx, userListCap)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]dtos.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, dtos.NewPublicUser(&users[i]))
	}
	return out, nil
}

// Lookup 批量查询发送者资料, 不存在的 ID 直接省略
func (s *UserService) Lookup(ctx context.Context, ids []string) (map[string]dtos.Sender, error) {
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]dtos.Sender, len(users))
	for id, u := range users {
		out[id] = dtos.Sender{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			Username:    u.Username,
			AvatarURL:   u.AvatarURL,
		}
	}
	return out, nil
}

func (s *UserService) issue(user *models.User) (*AuthResponse, error) {
	token, err := s.tokens.GenerateToken(jwt.Subject{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Username:    user.Username,
	})
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResponse{User: dtos.NewUser(user), Token: token}, nil
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}
