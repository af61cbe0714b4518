package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	structValidator *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		structValidator = validator.New()
	})
	return structValidator
}

// Validate checks the configuration against its struct tags and returns a
// descriptive error for the first violation found.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %q failed validation %q", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}
