package block

import (
	"encoding/json"
	"testing"

	"github.com/annel0/constructs/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_StringIsCanonical(t *testing.T) {
	d := New("oak_stairs", map[string]string{"half": "bottom", "facing": "north"})
	assert.Equal(t, "oak_stairs[facing=north,half=bottom]", d.String())
	assert.Equal(t, "stone", Of(StoneName).String())
	assert.Equal(t, "air", Descriptor{}.String())
}

func TestDescriptor_Parse(t *testing.T) {
	d, err := Parse("oak_stairs[half=bottom,facing=east]")
	require.NoError(t, err)
	assert.True(t, d.Equal(New("oak_stairs", map[string]string{"facing": "east", "half": "bottom"})))

	_, err = Parse("[facing=east]")
	assert.Error(t, err)
	_, err = Parse("oak_stairs[facing]")
	assert.Error(t, err)
	_, err = Parse("  ")
	assert.Error(t, err)
}

func TestDescriptor_EqualIsExact(t *testing.T) {
	a := MustParse("lever[facing=north,powered=false]")
	b := MustParse("lever[facing=north,powered=true]")
	c := MustParse("lever[facing=north]")

	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, a.Equal(MustParse("lever[powered=false,facing=north]")))
	assert.True(t, Air.Equal(Descriptor{}))
	assert.False(t, MustParse("air[waterlogged=true]").Equal(Air))
	assert.True(t, MustParse("air[waterlogged=true]").Equal(MustParse("air[waterlogged=true]")))
}

func TestDescriptor_Rotate(t *testing.T) {
	d := MustParse("oak_stairs[facing=north]")

	assert.Equal(t, "oak_stairs[facing=east]", d.Rotate(vec.Rotate90).String())
	assert.Equal(t, "oak_stairs[facing=west]", d.Rotate(vec.Rotate270).String())
	assert.Equal(t, "oak_stairs[facing=north]", d.String(), "исходный дескриптор не меняется")

	up := MustParse("torch[facing=up]")
	assert.Equal(t, up.String(), up.Rotate(vec.Rotate90).String())
}

func TestDescriptor_JSON(t *testing.T) {
	d := MustParse("chest[facing=south]")
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"chest[facing=south]"`, string(data))

	var back Descriptor
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, d.Equal(back))
}
