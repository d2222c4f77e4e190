package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// User is a tracked participant and the addresses they own
type User struct {
	Nickname            string          `json:"nickname" validate:"required,max=100"`
	Addresses           []string        `json:"addresses" validate:"required,min=1,unique,dive,eth_addr"`
	InitialBalanceTotal decimal.Decimal `json:"initialBalanceTotal"`
}

type usersDocument struct {
	Users []User `validate:"required,min=1,unique=Nickname,dive"`
}

// LoadUsers reads and validates the users file. The file is a JSON array, as
// written by the dashboard tooling, so it is decoded directly rather than
// through viper which only accepts maps at the document root.
func LoadUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse users file %s: %w", path, err)
	}

	if err := NewValidator().Struct(usersDocument{Users: users}); err != nil {
		return nil, fmt.Errorf("users validation failed: %w", err)
	}

	return users, nil
}

// CountAddresses returns the number of addresses across all users
func CountAddresses(users []User) int {
	n := 0
	for _, u := range users {
		n += len(u.Addresses)
	}
	return n
}
