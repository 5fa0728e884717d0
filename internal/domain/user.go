package domain

import (
	"strings"
	"time"
)

const (
	SourceLocal  = "local"
	SourceGoogle = "google"
)

type User struct {
	UserID             string     `json:"id" dynamodbav:"user_id"`
	Email              string     `json:"email" dynamodbav:"email"`
	PasswordHash       string     `json:"-" dynamodbav:"password_hash"`
	FirstName          string     `json:"first_name" dynamodbav:"first_name"`
	LastName           string     `json:"last_name" dynamodbav:"last_name"`
	Phone              *string    `json:"phone_number" dynamodbav:"phone_number"`
	Birthday           *time.Time `json:"birthday" dynamodbav:"birthday"`
	RegistrationSource string     `json:"registration_source" dynamodbav:"registration_source"` // "local" | "google"
	IsActive           bool       `json:"is_active" dynamodbav:"is_active"`
	IsStaff            bool       `json:"is_staff" dynamodbav:"is_staff"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty" dynamodbav:"last_login_at"`
	CreatedAt          time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt          time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// APIToken is the long-lived credential handed out on activation. One per user.
type APIToken struct {
	Key       string    `json:"key" dynamodbav:"key"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}

type RegisterRequest struct {
	Email     string  `json:"email" validate:"required,email,max=254"`
	Password  string  `json:"password" validate:"required,password"`
	Password2 string  `json:"password2" validate:"required"`
	FirstName string  `json:"first_name" validate:"max=150"`
	LastName  string  `json:"last_name" validate:"max=150"`
	Phone     *string `json:"phone_number" validate:"omitempty,phone"`
	Birthday  string  `json:"birthday" validate:"omitempty,datetime=2006-01-02"` // expected format: YYYY-MM-DD
}

type ConfirmRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"confirmation_code" validate:"required,numeric,len=6"`
}

type ResendRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Channel string `json:"channel" validate:"omitempty,oneof=email sms"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Phone     *string `json:"phone_number" validate:"omitempty,phone"`
	Birthday  *string `json:"birthday" validate:"omitempty,datetime=2006-01-02"` // expected format: YYYY-MM-DD
}

type ChangePasswordRequest struct {
	OldPassword  string `json:"old_password" validate:"required"`
	NewPassword  string `json:"new_password" validate:"required,password"`
	NewPassword2 string `json:"new_password2" validate:"required"`
}

// NormalizeEmail trims the address and lower-cases its domain part. The local part is kept as typed.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + strings.ToLower(email[at:])
}
