package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/zclconf/go-cty/cty"
)

func sampleConfig() *GraphConfig {
	return &GraphConfig{
		InputStreams:  []string{"in"},
		OutputStreams: []string{"out"},
		MaxQueueSize:  1,
		Nodes: []*Node{
			{
				Name:          "threshold",
				Calculator:    "ThresholdCalculator",
				InputStreams:  []string{"in"},
				OutputStreams: []string{"out"},
				NodeOptions: &AnyBox{
					TypeURL: "type.googleapis.com/streamgrid.ThresholdOptions",
					Value:   cty.ObjectVal(map[string]cty.Value{"threshold": cty.NumberFloatVal(0.5)}),
				},
			},
		},
	}
}

func TestClone(t *testing.T) {
	orig := sampleConfig()
	clone := orig.Clone()

	if diff := cmp.Diff(orig, clone, cmp.Comparer(func(a, b cty.Value) bool { return a.RawEquals(b) })); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	clone.InputStreams[0] = "changed"
	clone.Nodes[0].Name = "changed"
	clone.Nodes[0].NodeOptions.TypeURL = "changed"

	assert.Equal(t, "in", orig.InputStreams[0])
	assert.Equal(t, "threshold", orig.Nodes[0].Name)
	assert.Equal(t, "type.googleapis.com/streamgrid.ThresholdOptions", orig.Nodes[0].NodeOptions.TypeURL)
}

func TestEffectiveMaxQueueSize(t *testing.T) {
	assert.Equal(t, DefaultMaxQueueSize, (&GraphConfig{}).EffectiveMaxQueueSize())
	assert.Equal(t, 1, (&GraphConfig{MaxQueueSize: 1}).EffectiveMaxQueueSize())
	assert.Equal(t, -1, (&GraphConfig{MaxQueueSize: -5}).EffectiveMaxQueueSize())
}

func TestOptionsVariant(t *testing.T) {
	t.Run("typed", func(t *testing.T) {
		v, err := sampleConfig().Nodes[0].OptionsVariant()
		require.NoError(t, err)
		assert.IsType(t, TypedOptions{}, v)
	})

	t.Run("legacy", func(t *testing.T) {
		n := &Node{Name: "n", Options: map[string]cty.Value{"ext": cty.EmptyObjectVal}}
		v, err := n.OptionsVariant()
		require.NoError(t, err)
		assert.IsType(t, LegacyOptions{}, v)
	})

	t.Run("none", func(t *testing.T) {
		v, err := (&Node{Name: "n"}).OptionsVariant()
		require.NoError(t, err)
		assert.IsType(t, NoOptions{}, v)
	})

	t.Run("both is rejected", func(t *testing.T) {
		n := sampleConfig().Nodes[0]
		n.Options = map[string]cty.Value{"ext": cty.EmptyObjectVal}
		_, err := n.OptionsVariant()
		require.Error(t, err)
		assert.ErrorContains(t, err, "has both options and node_options fields")
		assert.True(t, errs.IsConfig(err))
	})
}

func TestNodeName(t *testing.T) {
	cfg := &GraphConfig{Nodes: []*Node{
		{Name: "pass", Calculator: "PassThroughCalculator"},
		{Calculator: "ThresholdCalculator"},
	}}

	assert.Equal(t, "pass", cfg.NodeName(0))
	assert.Equal(t, "ThresholdCalculator_1", cfg.NodeName(1))
}
