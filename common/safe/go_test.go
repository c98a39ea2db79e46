package safe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	assert.Nil(t, Run(func() error { return nil }))
	assert.EqualError(t, Run(func() error { return errors.Errorf("broken") }), "broken")
	assert.EqualError(t, Run(func() error { panic("boom") }), "boom")
}

func TestGo(t *testing.T) {
	assert.Nil(t, <-Go(func() error { return nil }))
	assert.EqualError(t, <-Go(func() error { panic("boom") }), "boom")
}
