package planapply

import (
	"strings"
	"time"

	"github.com/fdg312/fitdiary/internal/plannormalize"
	"github.com/fdg312/fitdiary/internal/storage"
)

// Receipt describes a committed apply. It is stored with the batch and
// returned unchanged on replay.
type Receipt struct {
	BatchKey        string                `json:"batch_key"`
	Kind            string                `json:"kind"`
	Date            string                `json:"date"`
	ParentIDs       []string              `json:"parent_ids"`
	ResolvedCount   int                   `json:"resolved_count"`
	UnresolvedCount int                   `json:"unresolved_count"`
	SkippedCount    int                   `json:"skipped_count"`
	DroppedCount    int                   `json:"dropped_count"`
	Totals          *plannormalize.Totals `json:"totals,omitempty"`
	CommittedAt     time.Time             `json:"committed_at"`

	// Replayed is set when the receipt came from an earlier call.
	Replayed bool `json:"-"`
}

// DeriveKey builds the default idempotency key from (user, date, kind).
func DeriveKey(userID, date, kind string) string {
	return userID + ":" + date + ":" + kind
}

// DeriveMealPlanKey narrows the default meal plan key to one meal type
// when the client applied the plan to a single meal.
func DeriveMealPlanKey(userID, date, mealType string) string {
	key := DeriveKey(userID, date, storage.BatchKindMealPlan)
	if mealType != "" {
		key += ":" + mealType
	}
	return key
}

// ScopedKey scopes a client-supplied Idempotency-Key to the user and plan kind.
func ScopedKey(userID, kind, header string) string {
	return userID + "|" + kind + "|" + strings.TrimSpace(header)
}
