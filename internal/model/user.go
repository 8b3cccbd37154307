package model

import "time"

// User identifies a customer account.  Accounts are created and
// authenticated by the external auth service; this service only reads
// them to resolve the requester and their payment methods.
type User struct {
	ID          uint64    `json:"id"`           // users.id
	FullName    string    `json:"full_name"`    // users.full_name
	Email       string    `json:"email"`        // users.email
	PhoneNumber string    `json:"phone_number"` // users.phone_number
	CreatedAt   time.Time `json:"-"`            // users.created_at
}

// Complete reports whether the profile carries everything a reservation
// needs.  Accounts registered through third-party providers may lack a
// phone number until the user finishes onboarding.
func (u *User) Complete() bool {
	return u.FullName != "" && u.Email != "" && u.PhoneNumber != ""
}

// PaymentCard is a stored payment method.  GatewayToken is the opaque
// token the payment gateway issued when the card was vaulted; the raw
// card number never touches this service.
type PaymentCard struct {
	ID           uint64 `json:"id"`    // payment_cards.id
	UserID       uint64 `json:"-"`     // payment_cards.user_id
	GatewayToken string `json:"-"`     // payment_cards.gateway_token
	Brand        string `json:"brand"` // payment_cards.brand
	Last4        string `json:"last4"` // payment_cards.last4
}
