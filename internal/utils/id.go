package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func GenerateNanoID(size int) string {
	id, err := gonanoid.Generate(idAlphabet, size)
	if err != nil {
		panic(err)
	}
	return id
}

func GenerateNanoIDWithPrefix(prefix string, size int) string {
	if prefix == "" {
		return GenerateNanoID(size)
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateNanoID(size))
}
