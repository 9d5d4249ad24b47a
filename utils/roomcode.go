package utils

import (
	"crypto/rand"
	"math/big"
)

const roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RoomCodeLength is the length of generated lobby room codes.
const RoomCodeLength = 6

// GenerateRoomCode produces a short random code for out-of-band joining.
// Uniqueness is the caller's problem.
func GenerateRoomCode() (string, error) {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeCharset[num.Int64()]
	}
	return string(code), nil
}
