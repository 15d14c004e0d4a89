package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryCodes(t *testing.T) {
	ioErr := IO(fs.ErrPermission, "write %s", "index.json")
	require.Error(t, ioErr)
	assert.True(t, IsIO(ioErr))
	assert.False(t, IsParsing(ioErr))
	assert.ErrorIs(t, ioErr, fs.ErrPermission)

	assert.True(t, IsParsing(Parsing(nil, "bad index")))
	assert.True(t, IsNetwork(Network(errors.New("dial tcp: refused"), "fetch")))
	assert.True(t, IsNotFound(NotFound("no images found")))
	assert.True(t, IsInvalidInput(InvalidInput("limit must be >= 1")))
}

func TestIONilPassthrough(t *testing.T) {
	assert.NoError(t, IO(nil, "noop"))
}

func TestCodeSurvivesOuterWrapping(t *testing.T) {
	inner := Parsing(errors.New("unexpected EOF"), "parse index")
	outer := fmt.Errorf("open cache: %w", inner)
	assert.True(t, IsParsing(outer))
}

func TestNestedCodesAreFound(t *testing.T) {
	inner := Network(&StatusError{URL: "https://example.com/a.jpg", StatusCode: 404}, "fetch")
	outer := IO(inner, "store")
	assert.True(t, IsIO(outer))
	assert.True(t, IsNetwork(outer))

	code, ok := IsStatus(outer)
	require.True(t, ok)
	assert.Equal(t, 404, code)
}

func TestIsStatusRejectsTransportErrors(t *testing.T) {
	_, ok := IsStatus(Network(errors.New("connection reset"), "fetch"))
	assert.False(t, ok)
}
