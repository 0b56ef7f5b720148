// Package doctor holds the doctor profile edited from the settings page.
package doctor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Settings messages.
const (
	MsgInvalidData  = "Invalid data"
	MsgUpdated      = "Settings updated successfully"
	MsgUpdateFailed = "Failed to update settings"
)

// ErrInvalidProfile wraps every profile validation failure.
var ErrInvalidProfile = errors.New("invalid doctor profile")

var validate = validator.New()

// Profile is the doctor's practice information.
type Profile struct {
	Name           string `json:"name" schema:"name" validate:"required"`
	Specialization string `json:"specialization" schema:"specialization" validate:"required"`
	ClinicInfo     string `json:"clinicInfo" schema:"clinicInfo" validate:"required"`
	DefaultFee     Fee    `json:"defaultFee" schema:"defaultFee" validate:"gte=0"`
}

// Fee is a consultation fee. It decodes from a JSON number or numeric text;
// blank text is zero.
type Fee float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *Fee) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	v, err := parseFee(raw)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ConvertFee is a gorilla/schema converter for form values.
func ConvertFee(value string) reflect.Value {
	v, err := parseFee(value)
	if err != nil {
		return reflect.Value{}
	}
	return reflect.ValueOf(v)
}

func parseFee(s string) (Fee, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: fee %q is not a number", ErrInvalidProfile, s)
	}
	return Fee(v), nil
}

// Normalize trims surrounding whitespace from every text field.
func (p Profile) Normalize() Profile {
	p.Name = strings.TrimSpace(p.Name)
	p.Specialization = strings.TrimSpace(p.Specialization)
	p.ClinicInfo = strings.TrimSpace(p.ClinicInfo)
	return p
}

// Validate checks a normalized profile. Failures wrap ErrInvalidProfile.
func (p Profile) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(fields, ", "))
}
