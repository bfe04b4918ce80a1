package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Uses go-playground/validator for declarative validation via struct tags,
// with additional custom validation for rules that cannot be expressed in
// tags.
//
// Returns an error describing the first validation failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// The served root must exist and be a directory
	info, err := os.Stat(cfg.Server.Root)
	if err != nil {
		return fmt.Errorf("server.root: directory %q does not exist", cfg.Server.Root)
	}
	if !info.IsDir() {
		return fmt.Errorf("server.root: %q is not a directory", cfg.Server.Root)
	}

	// The sliding window is tracked at second granularity
	if cfg.Server.RateLimit > 0 {
		if cfg.Server.RateWindow < time.Second {
			return fmt.Errorf("server.rate_window: %v is below the 1s minimum", cfg.Server.RateWindow)
		}
		if cfg.Server.RateWindow%time.Second != 0 {
			return fmt.Errorf("server.rate_window: %v must be whole seconds", cfg.Server.RateWindow)
		}
	}

	// MIME table keys must be extensions including the dot
	for ext, mime := range cfg.MIME.Types {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("mime.types: extension %q must start with a dot", ext)
		}
		if mime == "" {
			return fmt.Errorf("mime.types: extension %q has an empty content type", ext)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
