package note

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/puffnotes/internal/apperr"
	"github.com/starford/puffnotes/internal/storage"
)

// Ext is the storage suffix of a note entry.
const Ext = storage.Ext

// FileName maps a note name to its store entry.
func FileName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(name, Ext) {
		return name
	}
	return name + Ext
}

// DisplayName strips the storage suffix from an entry name.
func DisplayName(entry string) string {
	return strings.TrimSuffix(strings.TrimSpace(entry), Ext)
}

var noSeparators = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
		return validation.NewError("validation_note_name", "must not contain path separators")
	}
	return nil
})

// ValidateName rejects names that cannot be saved. The returned error
// wraps apperr.ErrInvalidName.
func ValidateName(name string) error {
	trimmed := DisplayName(name)
	if err := validation.Validate(trimmed,
		validation.Required.Error("name must not be blank"),
		validation.Length(1, 200),
		noSeparators,
	); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidName, err)
	}
	return nil
}
