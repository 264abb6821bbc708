package causes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCause_Errorf(t *testing.T) {
	cause := New(SchemaValidation, "bad_thing", "thing %q is bad, code %d")
	err := cause.Errorf("x", 42)
	require.Error(t, err)
	assert.Equal(t, `thing "x" is bad, code 42`, err.Error())
	assert.True(t, errors.Is(err, cause), "formatted error matches its cause sentinel")

	other := New(SchemaValidation, "other_thing", "other %q")
	assert.False(t, errors.Is(err, other))
}

func TestCause_Accessors(t *testing.T) {
	cause := New(NotFound, "no_such_key", "key %v missing")
	assert.Equal(t, NotFound, cause.Category())
	assert.Equal(t, "no_such_key", cause.Name())
	assert.Equal(t, "not found: no_such_key", cause.Error())
}

func TestIsCategory(t *testing.T) {
	cause := New(ReadOnly, "read_only", "op %q rejected")
	err := cause.Errorf("set")

	assert.True(t, IsCategory(err, ReadOnly))
	assert.False(t, IsCategory(err, NotFound))
	assert.False(t, IsCategory(nil, ReadOnly))

	wrapped := fmt.Errorf("outer context: %w", err)
	assert.True(t, IsCategory(wrapped, ReadOnly), "category found through wrap chain")

	errs := new(multierror.Error)
	errs = multierror.Append(errs, errors.New("unrelated"))
	errs = multierror.Append(errs, err)
	assert.True(t, IsCategory(errs.ErrorOrNil(), ReadOnly), "category found inside multierror")
	assert.False(t, IsCategory(errs.ErrorOrNil(), TypeMismatch))
}

func TestFind(t *testing.T) {
	cause := New(Configuration, "filtered", "params %v")
	err := fmt.Errorf("wrap: %w", cause.Errorf([]string{"x"}))
	require.NotNil(t, Find(err))
	assert.Equal(t, "filtered", Find(err).Name())

	assert.Nil(t, Find(errors.New("plain")))
	assert.Nil(t, Find(nil))
}
