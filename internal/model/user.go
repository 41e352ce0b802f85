package model

import "time"

// User はサービス利用ユーザーを表す。
// 登録後は変更されない。
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
