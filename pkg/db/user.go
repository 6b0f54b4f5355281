package db

import (
	"time"

	"github.com/choraleia/opengpt/pkg/models"
)

// User is an account record
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Username     string    `gorm:"size:120;not null"`
	Email        string    `gorm:"size:190;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string {
	return "users"
}

func (u *User) ToModel() models.User {
	return models.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}
