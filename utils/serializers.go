package utils

import (
	"danceportal_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	FamilyID *uint  `json:"family_id,omitempty"`
	Status   string `json:"status"`
}

// ToUserShort maps a user without its password hash.
func ToUserShort(u *models.User) UserShort {
	return UserShort{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		FamilyID: u.FamilyID,
		Status:   u.Status,
	}
}

// Money pairs cents with a display string.
type Money struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}

func ToMoney(cents int64) Money {
	return Money{Cents: cents, Display: FormatCents(cents)}
}

// PageMeta describes a paginated list response.
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

func NewPageMeta(page, size int, total int64) PageMeta {
	pages := int64(0)
	if size > 0 {
		pages = (total + int64(size) - 1) / int64(size)
	}
	return PageMeta{Page: page, PageSize: size, Total: total, TotalPages: pages}
}
