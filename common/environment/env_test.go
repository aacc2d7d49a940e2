package environment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Kiroku/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("KIROKU_TEST_STRING", "hello")
	assert.Equal(t, "hello", environment.StringOr("KIROKU_TEST_STRING", "default"))
	assert.Equal(t, "default", environment.StringOr("KIROKU_TEST_STRING_MISSING", "default"))

	t.Setenv("KIROKU_TEST_BLANK", "   ")
	assert.Equal(t, "default", environment.StringOr("KIROKU_TEST_BLANK", "default"))
}

func TestBoolOr(t *testing.T) {
	t.Setenv("KIROKU_TEST_BOOL", "true")
	assert.True(t, environment.BoolOr("KIROKU_TEST_BOOL", false))

	t.Setenv("KIROKU_TEST_BOOL", "0")
	assert.False(t, environment.BoolOr("KIROKU_TEST_BOOL", true))

	t.Setenv("KIROKU_TEST_BOOL", "maybe")
	assert.True(t, environment.BoolOr("KIROKU_TEST_BOOL", true))

	assert.True(t, environment.BoolOr("KIROKU_TEST_BOOL_MISSING", true))
}

func TestNumericHelpers(t *testing.T) {
	t.Setenv("KIROKU_TEST_INT", "42")
	t.Setenv("KIROKU_TEST_INT_BAD", "forty-two")
	t.Setenv("KIROKU_TEST_FLOAT", "0.5")
	t.Setenv("KIROKU_TEST_DURATION", "90s")

	assert.Equal(t, 42, environment.IntOr("KIROKU_TEST_INT", 0))
	assert.Equal(t, 7, environment.IntOr("KIROKU_TEST_INT_BAD", 7))
	assert.InDelta(t, 0.5, environment.Float64Or("KIROKU_TEST_FLOAT", 0.7), 1e-9)
	assert.InDelta(t, 0.7, environment.Float64Or("KIROKU_TEST_FLOAT_MISSING", 0.7), 1e-9)
	assert.Equal(t, 90*time.Second, environment.DurationOr("KIROKU_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, environment.DurationOr("KIROKU_TEST_DURATION_MISSING", time.Second))
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("KIROKU_TEST_SLICE", " a, b ,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, environment.StringSliceOr("KIROKU_TEST_SLICE", nil))

	t.Setenv("KIROKU_TEST_SLICE", " , ")
	assert.Equal(t, []string{"*"}, environment.StringSliceOr("KIROKU_TEST_SLICE", []string{"*"}))
}

func TestOneOf(t *testing.T) {
	t.Setenv("KIROKU_TEST_ENUM", "SQLite")
	v, err := environment.OneOf("KIROKU_TEST_ENUM", "supabase", "supabase", "sqlite", "chromem")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", v)

	v, err = environment.OneOf("KIROKU_TEST_ENUM_MISSING", "supabase", "supabase", "sqlite")
	require.NoError(t, err)
	assert.Equal(t, "supabase", v)

	t.Setenv("KIROKU_TEST_ENUM", "postgres")
	_, err = environment.OneOf("KIROKU_TEST_ENUM", "supabase", "supabase", "sqlite")
	require.Error(t, err)
}
