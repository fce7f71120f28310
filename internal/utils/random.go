package utils

import (
	"crypto/rand"
	"math/big"
)

// Ride codes skip characters that read alike (0/O, 1/I/L).
const rideCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

func GenerateRandomString(length int, charset string) string {
	result := make([]byte, length)
	charsetLength := big.NewInt(int64(len(charset)))

	for i := range result {
		num, err := rand.Int(rand.Reader, charsetLength)
		if err != nil {
			panic(err)
		}
		result[i] = charset[num.Int64()]
	}

	return string(result)
}

// GenerateRideCode returns the short code riders quote at pickup.
func GenerateRideCode() string {
	return GenerateRandomString(RideCodeLength, rideCodeCharset)
}
