package service

import (
	"context"
	"errors"
	"log"

	"github.com/ceejayvjose/ict-repair-system/internal/auth"
	"github.com/ceejayvjose/ict-repair-system/internal/errs"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
	"gorm.io/gorm"
)

// AccountService backs admin login with the admin_accounts table.
type AccountService struct {
	db *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{db: db}
}

func (s *AccountService) GetAdminByEmail(ctx context.Context, email string) (*model.AdminAccount, error) {
	var a model.AdminAccount
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}
	return &a, nil
}

// EnsureSeedAdmin creates the bootstrap admin account from configuration
// when it does not exist yet. Existing accounts are left alone, so a
// rotated ADMIN_PASSWORD only affects fresh installs.
func (s *AccountService) EnsureSeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.AdminAccount{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&model.AdminAccount{Email: email, PasswordHash: hash}).Error; err != nil {
		return err
	}
	log.Printf("account: seeded admin %s", email)
	return nil
}
