package user

import "time"

type UserInfo struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Uuid      string    `gorm:"column:uuid;type:char(36);not null;uniqueIndex:uniq_user_uuid"`
	Username  string    `gorm:"column:username;type:varchar(64);not null;uniqueIndex:uniq_user_username"`
	Nickname  string    `gorm:"column:nickname;type:varchar(64)"`
	Password  string    `gorm:"column:password;type:char(64);not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (UserInfo) TableName() string { return "user_info" }
