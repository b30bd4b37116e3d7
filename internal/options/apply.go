package options

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/vk/streamgridgo/internal/config"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

type override struct {
	key   string
	field string
	value any
}

// Apply returns a copy of cfg with overrides applied. A nil value clears the
// field. cfg is never modified.
func Apply(cfg *config.GraphConfig, reg *registry.Registry, overrides map[string]any) (*config.GraphConfig, error) {
	if cfg == nil {
		return nil, errs.Lifecycle("options", "Apply", "graph config is nil")
	}
	out := cfg.Clone()
	if len(overrides) == 0 {
		return out, nil
	}

	byNode := make(map[string][]override)
	for key, value := range overrides {
		node, field, ok := strings.Cut(key, ".")
		if !ok || node == "" || field == "" {
			continue
		}
		byNode[node] = append(byNode[node], override{key: key, field: field, value: value})
	}
	nameCount := make(map[string]int)
	for i := range out.Nodes {
		nameCount[out.NodeName(i)]++
	}

	applied := 0
	for i, n := range out.Nodes {
		name := out.NodeName(i)
		ovs := byNode[name]
		if len(ovs) == 0 || nameCount[name] > 1 {
			continue
		}
		slices.SortFunc(ovs, func(a, b override) int { return strings.Compare(a.key, b.key) })

		calc, ok := reg.Lookup(n.Calculator)
		if !ok || calc.Options == nil {
			return nil, errs.Config("options", "Apply",
				"Modifying the calculator options of %s is not supported.", n.Calculator)
		}
		if _, err := n.OptionsVariant(); err != nil {
			return nil, err
		}
		count, err := applyNode(n, calc.Options, ovs)
		if err != nil {
			return nil, err
		}
		applied += count
	}

	if applied != len(overrides) {
		return nil, errs.Config("options", "Apply", "Not all calculator params are valid.")
	}
	return out, nil
}

// applyNode applies the overrides to the options of one node and returns how
// many of them named an existing field.
func applyNode(n *config.Node, spec *registry.OptionsSpec, ovs []override) (int, error) {
	current, typed := currentOptions(n, spec)
	obj, err := spec.Convert(current)
	if err != nil {
		return 0, errs.Wrap(errs.KindConfig, fmt.Errorf("options of node %q: %w", n.Name, err), "options", "Apply")
	}
	attrs := make(map[string]cty.Value)
	if !obj.IsNull() {
		attrs = obj.AsValueMap()
	}

	count := 0
	for _, ov := range ovs {
		ty, ok := spec.FieldType(ov.field)
		if !ok {
			continue
		}
		val, err := fieldValue(ov, ty)
		if err != nil {
			return 0, err
		}
		attrs[ov.field] = val
		count++
	}

	updated, err := spec.Convert(cty.ObjectVal(attrs))
	if err != nil {
		return 0, errs.Wrap(errs.KindType, fmt.Errorf("options of node %q: %w", n.Name, err), "options", "Apply")
	}
	if typed {
		n.NodeOptions = &config.AnyBox{TypeURL: spec.TypeURL, Value: updated}
	} else {
		n.Options = map[string]cty.Value{spec.Extension: updated}
	}
	return count, nil
}

// currentOptions returns the node's present options value and whether it
// lives in node_options.
func currentOptions(n *config.Node, spec *registry.OptionsSpec) (cty.Value, bool) {
	switch {
	case n.NodeOptions != nil:
		return n.NodeOptions.Value, true
	case len(n.Options) > 0:
		return n.Options[spec.Extension], false
	default:
		return cty.NilVal, spec.TypeURL != ""
	}
}

func fieldValue(ov override, ty cty.Type) (cty.Value, error) {
	if ov.value == nil {
		return cty.NullVal(ty), nil
	}
	if ty.IsListType() || ty.IsSetType() || ty.IsTupleType() {
		if k := reflect.TypeOf(ov.value).Kind(); k != reflect.Slice && k != reflect.Array {
			return cty.NilVal, errs.Type("options", "Apply",
				"%s is a repeated field but the value isn't iterable.", ov.key)
		}
	}
	raw, err := ToValue(ov.value)
	if err != nil {
		return cty.NilVal, errs.Wrap(errs.KindType, fmt.Errorf("%s: %w", ov.key, err), "options", "Apply")
	}
	val, err := convert.Convert(raw, ty)
	if err != nil {
		return cty.NilVal, errs.Wrap(errs.KindType, fmt.Errorf("%s: %w", ov.key, err), "options", "Apply")
	}
	return val, nil
}

// ToValue converts a Go value into a cty value. Scalars, slices and
// string-keyed maps of arbitrary element types are supported, as produced by
// YAML and JSON decoders. Other values go through gocty's implied type.
func ToValue(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return x, nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(x))
		for i, e := range x {
			ev, err := ToValue(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, e := range x {
			ev, err := ToValue(e)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, err
	}
	return gocty.ToCtyValue(v, ty)
}
