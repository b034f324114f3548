package model

import "time"

// Lockout is an advisory hold an engineer places on a storage bay. It
// lives in the local sqlite store, invisible to the record store; a bay
// may carry more than one lockout, which the clash detector surfaces.
type Lockout struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Bay       int64     `gorm:"column:bay;not null;index" json:"bay"`
	Engineer  string    `gorm:"not null" json:"engineer"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Lockout) TableName() string { return "lockouts" }
