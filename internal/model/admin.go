package model

import "time"

// AdminUser は管理ダッシュボードにサインインできるユーザー。
type AdminUser struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session は管理者のサーバーサイドセッション。
type Session struct {
	ID        string
	AdminID   string
	ExpiresAt time.Time
	CreatedAt time.Time
}
