package domain

import (
	"bytes"
	"encoding/json"
)

var jsonNull = []byte("null")

// Field хранит поле тела запроса в исходном JSON-виде.
// Декодер принимает значение любого типа, тип проверяет цепочка валидации.
// Нулевое значение означает, что поле не передано.
type Field struct {
	raw json.RawMessage
}

// FieldOf кодирует v в Field. Если v не кодируется в JSON, поле считается непереданным.
func FieldOf(v any) Field {
	raw, err := json.Marshal(v)
	if err != nil {
		return Field{}
	}
	return Field{raw: raw}
}

// RawField оборачивает готовый JSON-текст.
func RawField(raw string) Field {
	return Field{raw: json.RawMessage(bytes.TrimSpace([]byte(raw)))}
}

// UnmarshalJSON сохраняет значение без разбора.
func (f *Field) UnmarshalJSON(data []byte) error {
	f.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// MarshalJSON возвращает исходное значение; непереданное поле кодируется как null.
func (f Field) MarshalJSON() ([]byte, error) {
	if len(f.raw) == 0 {
		return jsonNull, nil
	}
	return f.raw, nil
}

// Raw возвращает исходный JSON-текст поля.
func (f Field) Raw() json.RawMessage {
	return f.raw
}

// IsSet сообщает, что поле передано и не равно null.
func (f Field) IsSet() bool {
	return len(f.raw) > 0 && !bytes.Equal(f.raw, jsonNull)
}

// Truthy повторяет правило «поле присутствует»: null, false, 0 и "" не проходят.
// Любой объект или массив, в том числе пустой, проходит.
func (f Field) Truthy() bool {
	if !f.IsSet() {
		return false
	}
	switch f.raw[0] {
	case 'f':
		return false
	case 't', '{', '[':
		return true
	case '"':
		s, ok := f.Text()
		return !ok || s != ""
	default:
		n, ok := f.Number()
		return !ok || n != 0
	}
}

// Text возвращает значение строкового поля. ok == false для любого другого типа.
func (f Field) Text() (string, bool) {
	if !f.IsSet() || f.raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Number возвращает значение числового поля. Строка с цифрами числом не считается.
func (f Field) Number() (float64, bool) {
	if !f.IsSet() {
		return 0, false
	}
	if c := f.raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(f.raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// Items возвращает элементы поля-массива без разбора.
func (f Field) Items() ([]json.RawMessage, bool) {
	if !f.IsSet() || f.raw[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(f.raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// Literal возвращает строку без кавычек, а значение другого типа как JSON-текст.
func (f Field) Literal() string {
	if s, ok := f.Text(); ok {
		return s
	}
	if !f.IsSet() {
		return ""
	}
	return string(f.raw)
}
