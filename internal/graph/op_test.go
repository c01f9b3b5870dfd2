package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpTableComplete(t *testing.T) {
	names := map[string]bool{}
	variants := map[string]bool{}
	for op := Op(0); op < numOps; op++ {
		info := opTable[op]
		require.NotEmpty(t, info.name, "op %d has no name", op)
		require.NotEmpty(t, info.variant, "op %s has no variant", info.name)
		assert.False(t, names[info.name], "duplicate name %s", info.name)
		assert.False(t, variants[info.variant], "duplicate variant %s", info.variant)
		names[info.name] = true
		variants[info.variant] = true
	}
}

func TestParseOp(t *testing.T) {
	for op := Op(0); op < numOps; op++ {
		byName, err := ParseOp(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, byName)

		byVariant, err := ParseOp(op.Variant())
		require.NoError(t, err)
		assert.Equal(t, op, byVariant)
	}

	_, err := ParseOp("no_such_op")
	assert.Error(t, err)
}

func TestOp_Private(t *testing.T) {
	assert.True(t, OpDPMean.Private())
	assert.True(t, OpLaplaceMechanism.Private())
	assert.False(t, OpMean.Private())
	assert.False(t, OpLiteral.Private())
	assert.False(t, numOps.Private())
}

func TestOp_OutOfRange(t *testing.T) {
	assert.Equal(t, "Op(255)", Op(255).String())
	assert.Empty(t, Op(255).Variant())
}
