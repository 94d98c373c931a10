package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password,omitempty" json:"-"`
	Role      Role               `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
	return err == nil
}

// AuthUser returns the identity attached to an authenticated request.
func (u *User) AuthUser() AuthUser {
	return AuthUser{ID: u.ID, Name: u.Name, Role: u.Role}
}

// AuthUser is the resolved identity of the caller for the duration of one request.
type AuthUser struct {
	ID   primitive.ObjectID `json:"id"`
	Name string             `json:"name"`
	Role Role               `json:"role"`
}

func (a AuthUser) IsAdmin() bool { return a.Role == RoleAdmin }

func (a AuthUser) Authenticated() bool { return !a.ID.IsZero() }
