package account

import (
	"regexp"

	"github.com/Optum/tally/pkg/errors"
	validation "github.com/go-ozzo/ozzo-validation"
)

var accountIDPattern = regexp.MustCompile(`^\d{12}$`)

func validateConfig(cfg *Config) error {
	err := validation.ValidateStruct(cfg,
		validation.Field(&cfg.ID, validation.Required, validation.Match(accountIDPattern)),
		validation.Field(&cfg.Name, validation.Required),
	)
	if err != nil {
		return errors.NewValidation("account", err)
	}
	return nil
}
