package registry

import (
	"fmt"
	"slices"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// HasField reports whether the options message has a field called name.
func (s *OptionsSpec) HasField(name string) bool {
	return s.Type.IsObjectType() && s.Type.HasAttribute(name)
}

// FieldType returns the type of the named field.
func (s *OptionsSpec) FieldType(name string) (cty.Type, bool) {
	if !s.HasField(name) {
		return cty.NilType, false
	}
	return s.Type.AttributeType(name), true
}

// Convert converts val to the options type. Unlike a plain cty conversion it
// rejects attributes the options message does not declare. A null value
// converts to a typed null.
func (s *OptionsSpec) Convert(val cty.Value) (cty.Value, error) {
	if val.IsNull() {
		return cty.NullVal(s.Type), nil
	}
	if ty := val.Type(); ty.IsObjectType() && s.Type.IsObjectType() {
		var unknown []string
		for name := range ty.AttributeTypes() {
			if !s.Type.HasAttribute(name) {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			slices.Sort(unknown)
			return cty.NilVal, fmt.Errorf("unknown options fields %q", unknown)
		}
	}
	out, err := convert.Convert(val, s.Type)
	if err != nil {
		return cty.NilVal, err
	}
	return out, nil
}
