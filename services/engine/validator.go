package engine

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the run parameters; violations come back as a configuration error
// naming every offending field.
func (c RunConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return newError(KindConfiguration, "%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag()+"="+fe.Param())
	}
	return newError(KindConfiguration, "invalid run config: %s", strings.Join(fields, "; "))
}
