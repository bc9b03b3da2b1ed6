package models

import (
	"strconv"
	"strings"
)

// SyntheticIDPrefix marks client-assigned ids of pairs that the server has
// not seen yet. Server ids are UUIDs and never start with it.
const SyntheticIDPrefix = "temp-"

// SyntheticID formats the n-th synthetic id.
func SyntheticID(n uint64) string {
	return SyntheticIDPrefix + strconv.FormatUint(n, 10)
}

// IsSyntheticID reports whether id belongs to the client-side namespace.
func IsSyntheticID(id string) bool {
	return strings.HasPrefix(id, SyntheticIDPrefix)
}
