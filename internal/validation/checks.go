package validation

import (
	"math"
	"strings"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

// maxExactInteger: наибольшее целое, которое float64 представляет без потерь.
const maxExactInteger = 1 << 53

// MustInclude формирует стандартное сообщение об отсутствующем поле.
func MustInclude(resource, field string) error {
	return domain.Validationf("%s must include %s", resource, field)
}

// Required падает, если поле отсутствует или «ложно» (пустая строка, ноль, null).
func Required[T any](resource, field string, present func(T) bool) Check[T] {
	return func(in T) error {
		if !present(in) {
			return MustInclude(resource, field)
		}
		return nil
	}
}

// Present падает, если поле отсутствует или «ложно»: null, false, 0 или "".
func Present[T any](resource, field string, get func(T) domain.Field) Check[T] {
	return Required(resource, field, func(in T) bool {
		return get(in).Truthy()
	})
}

// NonBlank требует строку, непустую после обрезки пробелов. Значение другого типа
// тоже не проходит. Отсутствующее поле пропускается: за наличие отвечает Present,
// поэтому порядок этих проверок в цепочке не важен.
func NonBlank[T any](resource, field string, get func(T) domain.Field) Check[T] {
	return func(in T) error {
		v := get(in)
		if !v.IsSet() {
			return nil
		}
		text, ok := v.Text()
		if !ok || strings.TrimSpace(text) == "" {
			return MustInclude(resource, field)
		}
		return nil
	}
}

// PositiveInteger требует JSON-число, строго положительное и целое.
// Отсутствующее поле и значение другого типа не проходят.
func PositiveInteger[T any](get func(T) domain.Field, fail func(T) error) Check[T] {
	return func(in T) error {
		v, ok := get(in).Number()
		if !ok || !IsPositiveInteger(v) {
			return fail(in)
		}
		return nil
	}
}

// IDMatches пропускает запрос без id в теле (или с «ложным» id);
// иначе id должен быть строкой, совпадающей с id из пути.
func IDMatches[T any](resource string, bodyID func(T) domain.Field, routeID func(T) string) Check[T] {
	return func(in T) error {
		id := bodyID(in)
		if !id.Truthy() {
			return nil
		}
		if text, ok := id.Text(); ok && text == routeID(in) {
			return nil
		}
		return domain.Validationf("%s id does not match route id. %s: %s, Route: %s", resource, resource, id.Literal(), routeID(in))
	}
}

// IsPositiveInteger сообщает, что v > 0 и не имеет дробной части.
func IsPositiveInteger(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v > 0 && v <= maxExactInteger && v == math.Trunc(v)
}
