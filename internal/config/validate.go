package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Report fields by their config key rather than the Go name.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// FieldError describes one invalid configuration key.
type FieldError struct {
	Field string
	Err   string
}

func (fe FieldError) Error() string { return fe.Field + ": " + fe.Err }

// Validate checks struct constraints and the references between sections.
// Every problem found is returned, joined.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, verr := range verrs {
			errs = append(errs, FieldError{
				Field: strings.TrimPrefix(verr.Namespace(), "Config."),
				Err:   verr.Translate(translator),
			})
		}
	}

	if ref := c.Cluster.AuthRef; ref != "" {
		if _, ok := c.Auth[ref]; !ok {
			errs = append(errs, FieldError{Field: "cluster.auth_ref", Err: fmt.Sprintf("unknown auth %q", ref)})
		}
	}
	if strings.Contains(c.Cluster.Host, ":") {
		errs = append(errs, FieldError{Field: "cluster.host", Err: "must not include a port"})
	}
	if c.Cluster.Backend == BackendREST && c.Cluster.Host == "" {
		errs = append(errs, FieldError{Field: "cluster.host", Err: "is required by the rest backend"})
	}

	seen := make(map[string]struct{}, len(c.Buckets))
	for i, b := range c.Buckets {
		field := fmt.Sprintf("buckets[%d]", i)
		if _, dup := seen[b.Name]; dup && b.Name != "" {
			errs = append(errs, FieldError{Field: field, Err: fmt.Sprintf("duplicate bucket %q", b.Name)})
		}
		seen[b.Name] = struct{}{}

		if b.AuthRef == "" {
			continue
		}
		if b.Password != "" {
			errs = append(errs, FieldError{Field: field, Err: "password and auth_ref are mutually exclusive"})
		}
		if _, ok := c.Auth[b.AuthRef]; !ok {
			errs = append(errs, FieldError{Field: field + ".auth_ref", Err: fmt.Sprintf("unknown auth %q", b.AuthRef)})
		}
	}

	return errors.Join(errs...)
}
