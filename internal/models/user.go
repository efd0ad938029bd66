package models

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Role роль пользователя, admin или user
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User зарегистрированный покупатель или администратор витрины.
type User struct {
	Base
	Username           string     `json:"username"`
	Password           string     `json:"password,omitempty"` // bcrypt-хэш
	Name               string     `json:"name"`
	Balance            Balance    `json:"balance"`
	Role               Role       `json:"role"`
	CurrentPackage     *string    `json:"currentPackage"`
	PackagePurchasedAt *time.Time `json:"packagePurchasedAt"`
	IsActive           bool       `json:"isActive"`
	LastLogin          *time.Time `json:"lastLogin"`
	Version            int64      `json:"version"`
	// последние намерения журнала, изменившие баланс; пишутся той же записью, что и баланс
	AppliedIntents []string `json:"appliedIntents,omitempty"`
}

// MaxAppliedIntents сколько последних намерений хранится в записи пользователя.
const MaxAppliedIntents = 32

// Sanitized возвращает копию пользователя без хэша пароля для отдачи наружу.
func (u User) Sanitized() User {
	u.Password = ""
	u.AppliedIntents = nil
	return u
}

// HasAppliedIntent сообщает, отмечено ли намерение id в записи пользователя.
func (u *User) HasAppliedIntent(id string) bool {
	return slices.Contains(u.AppliedIntents, id)
}

// IsAdmin сообщает, есть ли у пользователя права администратора.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Balance баланс кошелька. Значение всегда конечное и неотрицательное:
// приведение выполняется и при чтении, и при записи JSON, поэтому строка,
// null или мусор в хранилище превращаются в число.
type Balance float64

// Float возвращает баланс как float64.
func (b Balance) Float() float64 {
	return float64(b)
}

// MarshalJSON пишет баланс, предварительно приводя его к допустимому значению.
func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(CoerceBalance(float64(b)))
}

// UnmarshalJSON принимает число, числовую строку, bool или null.
// Нечисловые значения дают 0, ошибка не возвращается.
func (b *Balance) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		*b = 0
		return nil
	}
	*b = Balance(CoerceBalance(raw))
	return nil
}

// CoerceBalance приводит произвольное значение к балансу по правилу Number(x) || 0:
// NaN, бесконечности и нечисловые строки становятся нулём.
// Отрицательные значения также обнуляются.
func CoerceBalance(v any) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0
	case Balance:
		f = float64(x)
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case json.Number:
		f = parseNumber(string(x))
	case string:
		f = parseNumber(x)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
