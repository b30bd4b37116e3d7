package portid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name         string
		raw          string
		expectErr    bool
		expectedPort Port
	}{
		{
			name:         "bare name",
			raw:          "in",
			expectedPort: Port{Tag: "", Index: -1, Name: "in"},
		},
		{
			name:         "tag and name",
			raw:          "IMAGE:frames",
			expectedPort: Port{Tag: "IMAGE", Index: -1, Name: "frames"},
		},
		{
			name:         "tag index and name",
			raw:          "IMAGE:2:frames_2",
			expectedPort: Port{Tag: "IMAGE", Index: 2, Name: "frames_2"},
		},
		{
			name:         "underscore tag",
			raw:          "_TAG_1:x",
			expectedPort: Port{Tag: "_TAG_1", Index: -1, Name: "x"},
		},
		{
			name:      "error - empty string",
			raw:       "",
			expectErr: true,
		},
		{
			name:      "error - lower case tag",
			raw:       "image:frames",
			expectErr: true,
		},
		{
			name:      "error - upper case name",
			raw:       "IMAGE:Frames",
			expectErr: true,
		},
		{
			name:      "error - index without tag",
			raw:       "1:frames",
			expectErr: true,
		},
		{
			name:      "error - non numeric index",
			raw:       "IMAGE:x:frames",
			expectErr: true,
		},
		{
			name:      "error - trailing colon",
			raw:       "IMAGE:",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			port, err := Parse(tc.raw)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedPort, port)
			assert.Equal(t, tc.raw, port.String(), "String should reproduce the input")
		})
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("input_video"))
	assert.False(t, ValidName("TAG:input"))
	assert.False(t, ValidName("Input"))
	assert.False(t, ValidName(""))
}
