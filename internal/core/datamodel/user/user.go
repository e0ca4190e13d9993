package user

import "time"

// User is a staff account. Students never log in to this service.
type User struct {
	ID           int64     `gorm:"primaryKey" db:"id"`
	Email        string    `gorm:"column:email;uniqueIndex;not null" db:"email"`
	Name         string    `gorm:"column:name;not null" db:"name"`
	PasswordHash string    `gorm:"column:password_hash;not null" db:"password_hash"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true" db:"is_active"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" db:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" db:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Permission) TableName() string {
	return "permissions"
}

type UserPermission struct {
	ID           int64     `gorm:"primaryKey"`
	UserID       int64     `gorm:"column:user_id;not null;uniqueIndex:idx_user_permission"`
	PermissionID int64     `gorm:"column:permission_id;not null;uniqueIndex:idx_user_permission"`
	GrantedBy    *int64    `gorm:"column:granted_by"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UserPermission) TableName() string {
	return "user_permissions"
}
