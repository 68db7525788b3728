package store

import "github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"

// GuestCartKey holds the guest cart snapshot.
const GuestCartKey = "cart_guest_v1"

// UserCartKey holds the local mirror of a user's cart.
func UserCartKey(userID string) string {
	return "cart_user_" + userID
}

// RowIDsKey holds the server row ids created for a user.
func RowIDsKey(userID string) string {
	return "cart_rowids_" + userID
}

// PendingRemovalsKey holds the server row ids whose remote removal failed.
func PendingRemovalsKey(userID string) string {
	return "cart_pending_" + userID
}

// SnapshotKey returns the snapshot key of scope.
func SnapshotKey(scope domain.Scope) string {
	if scope.IsGuest() {
		return GuestCartKey
	}
	return UserCartKey(scope.UserID)
}
