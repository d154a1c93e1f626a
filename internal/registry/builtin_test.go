package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithBuiltins(t *testing.T) {
	r := NewWithBuiltins()

	assert.True(t, r.Validate("deploy"))
	assert.True(t, r.Validate("backup"))

	pt, err := r.Get("deploy")
	assert.NoError(t, err)
	assert.Len(t, pt.Tasks, 3)
}
