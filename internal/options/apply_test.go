package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/config"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

const thresholdTypeURL = "type.googleapis.com/streamgrid.ThresholdOptions"

type nopCalculator struct{ calculator.Base }

func (nopCalculator) Process(*calculator.Context) error { return nil }

type testModule struct{}

func (testModule) Register(r *registry.Registry) {
	nop := func(*calculator.Contract) error { return nil }
	newNop := func() calculator.Calculator { return nopCalculator{} }
	r.RegisterCalculator(&registry.Registration{Name: "PassThroughCalculator", GetContract: nop, New: newNop})
	r.RegisterCalculator(&registry.Registration{
		Name:        "ThresholdCalculator",
		GetContract: nop,
		New:         newNop,
		Options: &registry.OptionsSpec{
			Extension: "ThresholdOptions.ext",
			TypeURL:   thresholdTypeURL,
			Type: cty.ObjectWithOptionalAttrs(map[string]cty.Type{
				"threshold": cty.Number,
				"labels":    cty.List(cty.String),
			}, []string{"threshold", "labels"}),
		},
	})
}

func graphConfig() *config.GraphConfig {
	return &config.GraphConfig{
		Nodes: []*config.Node{
			{Name: "pass", Calculator: "PassThroughCalculator"},
			{
				Name:       "threshold",
				Calculator: "ThresholdCalculator",
				NodeOptions: &config.AnyBox{
					TypeURL: thresholdTypeURL,
					Value:   cty.ObjectVal(map[string]cty.Value{"threshold": cty.NumberFloatVal(0.5)}),
				},
			},
			{Calculator: "ThresholdCalculator"},
		},
	}
}

func TestApply(t *testing.T) {
	// --- Arrange ---
	cfg := graphConfig()
	reg := registry.New(testModule{})

	// --- Act ---
	got, err := Apply(cfg, reg, map[string]any{
		"threshold.threshold":          0.9,
		"threshold.labels":             []any{"low", "high"},
		"ThresholdCalculator_2.labels": []string{"x"},
	})

	// --- Assert ---
	require.NoError(t, err)

	typed := got.Nodes[1].NodeOptions
	require.NotNil(t, typed)
	threshold, _ := typed.Value.GetAttr("threshold").AsBigFloat().Float64()
	assert.InDelta(t, 0.9, threshold, 1e-9)
	assert.True(t, typed.Value.GetAttr("labels").RawEquals(
		cty.ListVal([]cty.Value{cty.StringVal("low"), cty.StringVal("high")})))

	unnamed := got.Nodes[2]
	require.NotNil(t, unnamed.NodeOptions, "unnamed node without options gets typed options")
	assert.True(t, unnamed.NodeOptions.Value.GetAttr("threshold").IsNull())

	original, _ := cfg.Nodes[1].NodeOptions.Value.GetAttr("threshold").AsBigFloat().Float64()
	assert.InDelta(t, 0.5, original, 1e-9, "input config must not be modified")
	assert.Nil(t, cfg.Nodes[2].NodeOptions)
}

func TestApplyClearsField(t *testing.T) {
	got, err := Apply(graphConfig(), registry.New(testModule{}), map[string]any{"threshold.threshold": nil})

	require.NoError(t, err)
	assert.True(t, got.Nodes[1].NodeOptions.Value.GetAttr("threshold").IsNull())
}

func TestApplyLegacyOptions(t *testing.T) {
	// --- Arrange ---
	cfg := graphConfig()
	cfg.Nodes[1].NodeOptions = nil
	cfg.Nodes[1].Options = map[string]cty.Value{
		"ThresholdOptions.ext": cty.ObjectVal(map[string]cty.Value{"threshold": cty.NumberIntVal(1)}),
	}

	// --- Act ---
	got, err := Apply(cfg, registry.New(testModule{}), map[string]any{"threshold.threshold": 3})

	// --- Assert ---
	require.NoError(t, err)
	assert.Nil(t, got.Nodes[1].NodeOptions)
	assert.True(t, got.Nodes[1].Options["ThresholdOptions.ext"].GetAttr("threshold").RawEquals(cty.NumberIntVal(3)))
}

func TestApplyErrors(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(cfg *config.GraphConfig)
		overrides map[string]any
		wantErr   string
		wantKind  errs.Kind
	}{
		{
			name:      "calculator without options",
			overrides: map[string]any{"pass.threshold": 1},
			wantErr:   "Modifying the calculator options of PassThroughCalculator is not supported.",
			wantKind:  errs.KindConfig,
		},
		{
			name: "both option fields",
			mutate: func(cfg *config.GraphConfig) {
				cfg.Nodes[1].Options = map[string]cty.Value{"ThresholdOptions.ext": cty.EmptyObjectVal}
			},
			overrides: map[string]any{"threshold.threshold": 1},
			wantErr:   "has both options and node_options fields",
			wantKind:  errs.KindConfig,
		},
		{
			name:      "repeated field needs iterable",
			overrides: map[string]any{"threshold.labels": "low"},
			wantErr:   "threshold.labels is a repeated field but the value isn't iterable.",
			wantKind:  errs.KindType,
		},
		{
			name:      "unknown field",
			overrides: map[string]any{"threshold.treshold": 1},
			wantErr:   "Not all calculator params are valid.",
			wantKind:  errs.KindConfig,
		},
		{
			name:      "unknown node",
			overrides: map[string]any{"threshold.threshold": 1, "nobody.threshold": 1},
			wantErr:   "Not all calculator params are valid.",
			wantKind:  errs.KindConfig,
		},
		{
			name:      "key without field",
			overrides: map[string]any{"threshold": 1},
			wantErr:   "Not all calculator params are valid.",
			wantKind:  errs.KindConfig,
		},
		{
			name:      "value of the wrong type",
			overrides: map[string]any{"threshold.threshold": []any{"x"}},
			wantErr:   "threshold.threshold",
			wantKind:  errs.KindType,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			cfg := graphConfig()
			if tc.mutate != nil {
				tc.mutate(cfg)
			}
			before := cfg.Clone()

			// --- Act ---
			got, err := Apply(cfg, registry.New(testModule{}), tc.overrides)

			// --- Assert ---
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorContains(t, err, tc.wantErr)
			assert.True(t, errs.IsKind(err, tc.wantKind), "unexpected kind for %v", err)
			assert.True(t, cfg.Nodes[1].NodeOptions.Value.RawEquals(before.Nodes[1].NodeOptions.Value))
		})
	}
}

func TestToValue(t *testing.T) {
	testCases := []struct {
		name string
		in   any
		want cty.Value
	}{
		{"string", "a", cty.StringVal("a")},
		{"int", 3, cty.NumberIntVal(3)},
		{"bool", true, cty.True},
		{"any slice", []any{"a", 1}, cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.NumberIntVal(1)})},
		{"map", map[string]any{"k": "v"}, cty.ObjectVal(map[string]cty.Value{"k": cty.StringVal("v")})},
		{"typed slice", []string{"a"}, cty.ListVal([]cty.Value{cty.StringVal("a")})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToValue(tc.in)

			require.NoError(t, err)
			assert.True(t, got.RawEquals(tc.want), "got %#v", got)
		})
	}
}
