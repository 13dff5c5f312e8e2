package rooms

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

const roomCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RoomCodeLength is the length of a generated room code.
const RoomCodeLength = 4

// GenerateRoomCode returns a random 4-letter uppercase room code. Codes are
// not checked for uniqueness before use; the space is large enough that
// collisions among active rooms are rare.
func GenerateRoomCode() string {
	var sb strings.Builder
	for i := 0; i < RoomCodeLength; i++ {
		sb.WriteByte(roomCodeLetters[rand.Intn(len(roomCodeLetters))])
	}
	return sb.String()
}

// ValidRoomCode reports whether code is a well-formed room code.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// GeneratePlayerID returns a new player ID. IDs combine a timestamp with a
// random suffix, so uniqueness is probabilistic rather than guaranteed.
func GeneratePlayerID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("player_%d_%s", time.Now().UnixMilli(), suffix)
}
