package token_test

import (
	"testing"

	"github.com/mna/pex/lang/token"
	"github.com/stretchr/testify/assert"
)

func TestKindStringKnownValues(t *testing.T) {
	assert.Equal(t, "ident", token.IDENT.String())
	assert.Equal(t, "$$", token.DOLLARDOLLAR.String())
	assert.Equal(t, ";", token.SEMI.String())
}

func TestKindStringOutOfRangeIsUnknown(t *testing.T) {
	assert.Equal(t, "unknown", token.Kind(127).String())
	assert.Equal(t, "unknown", token.Kind(-1).String())
}

func TestPosUnknownWhenEitherCoordinateIsZero(t *testing.T) {
	assert.True(t, token.Pos{}.Unknown())
	assert.True(t, token.Pos{Line: 1}.Unknown())
	assert.True(t, token.Pos{Col: 1}.Unknown())
	assert.False(t, token.Pos{Line: 1, Col: 1}.Unknown())
}

func TestPosString(t *testing.T) {
	assert.Equal(t, "-", token.Pos{}.String())
	assert.Equal(t, "3:7", token.Pos{Line: 3, Col: 7}.String())
}
