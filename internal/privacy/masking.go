package privacy

import (
	"encoding/hex"
	"strings"

	"groupjobs/internal/constants"
)

// MaskGroupID renders a binary group identifier as hex with all but the last
// few characters hidden.
// Example: []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02} -> "********0102"
func MaskGroupID(groupID []byte) string {
	if len(groupID) == 0 {
		return ""
	}
	return maskString(hex.EncodeToString(groupID), constants.DefaultGroupIDMaskLength)
}

// MaskUniqueID masks a job unique ID while keeping the tail for correlation
// Example: "0b6d3f8e-2c1a-4f5e-9d7b-1a2b3c4d5e6f" -> "****************************3c4d5e6f"
func MaskUniqueID(uniqueID string) string {
	return maskString(uniqueID, constants.DefaultUniqueIDMaskLength)
}

// MaskUniqueIDs masks a list of unique IDs
func MaskUniqueIDs(uniqueIDs []string) []string {
	masked := make([]string, len(uniqueIDs))
	for i, id := range uniqueIDs {
		masked[i] = MaskUniqueID(id)
	}
	return masked
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
