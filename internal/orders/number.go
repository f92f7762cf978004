package orders

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateNumber returns a new human-quotable order number of the form
// ORD-20260901-3FA85F64. The random suffix comes from a v4 UUID, so
// collisions within a day are not a practical concern; the store still
// carries a unique index as the last line of defense.
func GenerateNumber(now time.Time) string {
	identifier := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(identifier[:4]))
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
