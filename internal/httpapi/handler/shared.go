// Package handler holds the REST handlers for the room API. The realtime
// surface lives in the websocket package; these endpoints only create rooms
// and issue connection tokens.
package handler

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5/middleware"
)

// roomCodeCharset excludes easily confused characters (I, O, 0, 1).
const roomCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RoomCodeLength is the length of generated room codes.
const RoomCodeLength = 6

// Same alphabet as roomCodeCharset: I, O, 0 and 1 are not valid codes.
var roomCodePattern = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{6}$`)

// GenerateRoomCode returns a random 6-character room code.
func GenerateRoomCode() (string, error) {
	buf := make([]byte, RoomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = roomCodeCharset[int(b)%len(roomCodeCharset)]
	}
	return string(buf), nil
}

// ValidRoomCode reports whether code looks like a generated room code.
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// requestID returns the request ID from chi's context for logging.
func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(middleware.RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
