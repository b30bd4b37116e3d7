package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/zclconf/go-cty/cty"
)

type nopCalculator struct{ calculator.Base }

func (nopCalculator) Process(*calculator.Context) error { return nil }

func nopRegistration(name string) *Registration {
	return &Registration{
		Name:        name,
		GetContract: func(*calculator.Contract) error { return nil },
		New:         func() calculator.Calculator { return nopCalculator{} },
	}
}

type testModule struct{ names []string }

func (m testModule) Register(r *Registry) {
	for _, n := range m.names {
		r.RegisterCalculator(nopRegistration(n))
	}
}

func TestRegistry(t *testing.T) {
	r := New(testModule{names: []string{"B", "A"}})

	reg, ok := r.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "A", reg.Name)

	_, ok = r.Lookup("Missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"A", "B"}, r.Names())
}

func TestRegisterPanics(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		r := New()
		r.RegisterCalculator(nopRegistration("A"))
		assert.PanicsWithValue(t, "calculator with name 'A' already registered", func() {
			r.RegisterCalculator(nopRegistration("A"))
		})
	})

	t.Run("incomplete", func(t *testing.T) {
		assert.Panics(t, func() { New().RegisterCalculator(&Registration{Name: "X"}) })
	})
}

func TestIndependentRegistries(t *testing.T) {
	a := New(testModule{names: []string{"OnlyInA"}})
	b := New()

	_, inA := a.Lookup("OnlyInA")
	_, inB := b.Lookup("OnlyInA")
	assert.True(t, inA)
	assert.False(t, inB)
}

func TestValidateRegistry(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := New()
		reg := nopRegistration("WithOptions")
		reg.Options = &OptionsSpec{Extension: "Opts.ext", Type: cty.EmptyObject}
		r.RegisterCalculator(reg)
		assert.NoError(t, r.ValidateRegistry(context.Background()))
	})

	t.Run("invalid", func(t *testing.T) {
		r := New()
		reg := nopRegistration("Broken")
		reg.Options = &OptionsSpec{Type: cty.String}
		r.RegisterCalculator(reg)
		err := r.ValidateRegistry(context.Background())
		require.Error(t, err)
		assert.ErrorContains(t, err, "extension name or a type URL")
		assert.ErrorContains(t, err, "must be an object")
	})
}
