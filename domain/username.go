package domain

import (
	"secure-chat/errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Username string

var validate = validator.New()

// ParseUsername trims the raw line and rejects blank names.
// No uniqueness or character policy is applied.
func ParseUsername(raw string) (Username, error) {
	name := strings.TrimSpace(raw)
	if err := validate.Var(name, "required"); err != nil {
		return "", errors.ErrEmptyUsername
	}
	return Username(name), nil
}

func (u Username) String() string { return string(u) }
