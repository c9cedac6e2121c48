package branches

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/branchdesk/internal/shared"
)

// Schema validates and normalizes branch records before they reach storage.
// It is built once at startup and is safe for concurrent use.
type Schema struct {
	validate *validator.Validate
}

// record is the normalized shape the validator checks.
type record struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	Manager *int64 `json:"manager" validate:"omitempty,gt=0"`
}

// NewSchema constructs a Schema.
func NewSchema() *Schema {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return &Schema{validate: v}
}

// Normalize trims every text field, lowercases the email, defaults isActive
// to true and rejects records without a name or address.
func (s *Schema) Normalize(in BranchInput) (Branch, error) {
	b := Branch{
		Name:     strings.TrimSpace(in.Name),
		Address:  strings.TrimSpace(in.Address),
		Phone:    strings.TrimSpace(in.Phone),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		IsActive: true,
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	if in.Manager != nil {
		id := *in.Manager
		b.Manager = &id
	}

	if err := s.validate.Struct(record{Name: b.Name, Address: b.Address, Manager: b.Manager}); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Branch{}, err
		}
		verr := &shared.ValidationError{}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), reason(fe))
		}
		return Branch{}, verr
	}

	b.NameKey = FoldName(b.Name)
	return b, nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be a positive user id"
	default:
		return fe.Field() + " is invalid"
	}
}

// FoldName reduces a name to its search key: diacritics removed, case folded.
func FoldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return cases.Fold().String(strings.TrimSpace(stripped))
}
