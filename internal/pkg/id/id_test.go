package id

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

func TestNew_IsULID(t *testing.T) {
	s := New()
	_, err := ulid.ParseStrict(s)
	assert.NoError(t, err)
	assert.NotEqual(t, s, New())
}
