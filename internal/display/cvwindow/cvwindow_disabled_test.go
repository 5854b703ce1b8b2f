//go:build !gocv
// +build !gocv

package cvwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	logx "depthview/pkg/logx"
)

func TestUnavailableWithoutTag(t *testing.T) {
	t.Parallel()
	s, err := New(logx.Nop())
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrUnavailable)
}
