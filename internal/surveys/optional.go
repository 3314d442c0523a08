package surveys

import "encoding/json"

// Optional is a JSON field that remembers whether it was present, so an explicit null can clear a column
// while an absent key leaves it untouched.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON marks the field present and decodes a value, or leaves Value nil for null.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Optional[T]) apply(dst **T) {
	if o.Set {
		*dst = o.Value
	}
}
