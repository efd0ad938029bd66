// Package refcode генерирует коды назначения платежа для заявок на пополнение.
package refcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Prefix начало каждого кода.
const Prefix = "NAP"

// Length количество случайных символов после префикса.
const Length = 8

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// New возвращает код вида NAP + 8 заглавных латинских букв или цифр.
func New() (string, error) {
	const op = "refcode.New"
	var b strings.Builder
	b.Grow(len(Prefix) + Length)
	b.WriteString(Prefix)
	size := big.NewInt(int64(len(alphabet)))
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Valid проверяет формат кода.
func Valid(code string) bool {
	if len(code) != len(Prefix)+Length || !strings.HasPrefix(code, Prefix) {
		return false
	}
	for _, c := range code[len(Prefix):] {
		if !strings.ContainsRune(alphabet, c) {
			return false
		}
	}
	return true
}
