package domain

// Scope selects which cart is active: the guest cart of the device, or the
// cart of an authenticated user.
type Scope struct {
	UserID string
}

// GuestScope returns the unauthenticated scope.
func GuestScope() Scope {
	return Scope{}
}

// UserScope returns the scope of the given authenticated user.
func UserScope(userID string) Scope {
	return Scope{UserID: userID}
}

// IsGuest reports whether the scope is unauthenticated.
func (s Scope) IsGuest() bool {
	return s.UserID == ""
}

func (s Scope) String() string {
	if s.IsGuest() {
		return "guest"
	}
	return "user:" + s.UserID
}
