package models

import (
	"net/mail"
	"strings"
	"time"
)

// ClientDetails are the contact fields collected by the booking form.
type ClientDetails struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Normalize trims whitespace and lowercases the email.
func (c ClientDetails) Normalize() ClientDetails {
	return ClientDetails{
		ID:    strings.TrimSpace(c.ID),
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}

// Missing returns the names of absent or malformed contact fields.
func (c ClientDetails) Missing() []string {
	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.Email == "" {
		missing = append(missing, "email")
	} else if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		missing = append(missing, "email")
	}
	if len(digits(c.Phone)) < 7 {
		missing = append(missing, "phone")
	}
	return missing
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type BookingRequest struct {
	ShopID    string        `json:"shop_id"`
	ServiceID string        `json:"service_id"`
	Staff     StaffSelector `json:"staff_id"`
	Client    ClientDetails `json:"client"`
	StartTime time.Time     `json:"start_time"`
	Notes     string        `json:"notes,omitempty"`
}

// LedgerEntry is an appointment with display names resolved for external reports.
type LedgerEntry struct {
	Appointment Appointment `json:"appointment"`
	ShopName    string      `json:"shop_name"`
	ServiceName string      `json:"service_name"`
	StaffName   string      `json:"staff_name"`
	ClientName  string      `json:"client_name"`
	ClientPhone string      `json:"client_phone"`
}
