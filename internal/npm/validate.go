package npm

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// schemaChanged wraps decode and shape failures; the message is stable so
// callers and users can recognize a contract drift at a glance.
func schemaChanged(err error) error {
	return &ValidationError{Message: "NPM API response schema changed", Err: err}
}

// decodeOne unmarshals a single resource and checks its shape.
func decodeOne(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return schemaChanged(err)
	}
	if err := validate.Struct(out); err != nil {
		return schemaChanged(err)
	}
	return nil
}

// decodeList unmarshals a JSON array into out (a pointer to a slice of
// structs) and validates every element; one bad element fails the whole
// decode. An empty array is valid.
func decodeList[T any](data []byte, out *[]T) error {
	if err := json.Unmarshal(data, out); err != nil {
		return schemaChanged(err)
	}
	for i := range *out {
		if err := validate.Struct(&(*out)[i]); err != nil {
			return schemaChanged(fmt.Errorf("element %d: %w", i, err))
		}
	}
	return nil
}

// ValidateSpec checks a request payload against its field constraints
// before it is sent, so obviously malformed specs fail without a round
// trip.
func ValidateSpec(spec any) error {
	if err := validate.Struct(spec); err != nil {
		return &ValidationError{Message: "invalid request payload", Err: err}
	}
	return nil
}
