// Package validate 封装 go-playground/validator，统一输出参数错误
package validate

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"saas-tenancy-api/pkg/errors"
)

var (
	once     sync.Once
	instance *validator.Validate

	domainPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)
	subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,48}[a-z0-9])?$`)
	currencyPattern  = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Validator 返回共享的校验器实例
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("tenantdomain", func(fl validator.FieldLevel) bool {
			return domainPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("subdomain", func(fl validator.FieldLevel) bool {
			return subdomainPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return currencyPattern.MatchString(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// Struct 校验结构体，失败时返回 CodeInvalidParam 错误
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Wrap(err, errors.CodeInvalidParam, "validation failed")
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.InvalidParam(strings.Join(msgs, "; "))
}

// Var 校验单个变量
func Var(field string, value any, tag string) error {
	if err := Validator().Var(value, tag); err != nil {
		return errors.Newf(errors.CodeInvalidParam, "%s is invalid", field)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "tenantdomain":
		return fmt.Sprintf("%s must be a valid lowercase domain name", field)
	case "subdomain":
		return fmt.Sprintf("%s must be a valid lowercase subdomain label", field)
	case "currency":
		return fmt.Sprintf("%s must be a 3-letter ISO currency code", field)
	default:
		return fmt.Sprintf("%s failed on %s", field, fe.Tag())
	}
}
