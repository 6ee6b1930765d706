package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateNanoIDWithPrefix returns ids like "acct_x7k2m9q4p1z8w3e5".
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, _ := gonanoid.Generate(idAlphabet, length)
	return fmt.Sprintf("%s_%s", prefix, id)
}
