package reconcile

import (
	"strings"

	"github.com/google/uuid"
)

// TempPrefix marks ids that were minted locally and have no server row yet.
// Server ids are bare UUIDs and can never carry it.
const TempPrefix = "tmp_"

func NewTempID() string {
	return TempPrefix + uuid.NewString()
}

func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}
