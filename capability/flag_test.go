package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]struct {
		in   string
		want []Flag
		err  error
	}{
		"empty":       {in: "", want: nil},
		"single":      {in: "cuda", want: []Flag{CUDA}},
		"ordered":     {in: "metal,coreml", want: []Flag{CoreML, Metal}},
		"spaces":      {in: " openblas  opencl ", want: []Flag{OpenCL, OpenBLAS}},
		"dashed":      {in: "force-debug", want: []Flag{ForceDebug}},
		"upper":       {in: "HIPBLAS", want: []Flag{HIPBLAS}},
		"duplicates":  {in: "cuda,cuda", want: []Flag{CUDA}},
		"unknown":     {in: "cuda,vulkan", err: ErrUnknownFlag},
		"only commas": {in: ",,", want: nil},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Parse(tt.in)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Flags())
		})
	}
}

func TestSet(t *testing.T) {
	s := NewSet(Metal, CUDA)
	assert.True(t, s.Has(Metal))
	assert.False(t, s.Has(CoreML))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "metal,cuda", s.String())

	u := s.Union(NewSet(CoreML, CUDA))
	assert.Equal(t, []Flag{CoreML, Metal, CUDA}, u.Flags())
	// the receiver is not modified
	assert.False(t, s.Has(CoreML))

	var zero Set
	assert.False(t, zero.Has(CUDA))
	assert.Equal(t, "", zero.String())
}

func TestDescriptions(t *testing.T) {
	for _, f := range All {
		assert.NotEmpty(t, f.Description(), f)
	}
}
