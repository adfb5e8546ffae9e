package database

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionBuilderCounts(t *testing.T) {
	builder := NewTransactionBuilder()
	assert.Equal(t, 0, builder.Count())

	require.NoError(t, builder.AddUpdate(types.Update{}))
	require.NoError(t, builder.AddPut(types.Put{}))
	assert.Equal(t, 2, builder.Count())
}

func TestTransactionBuilderRejectsOverLimit(t *testing.T) {
	builder := NewTransactionBuilder()

	for i := 0; i < 100; i++ {
		require.NoError(t, builder.AddUpdate(types.Update{}))
	}

	assert.Error(t, builder.AddUpdate(types.Update{}))
	assert.Error(t, builder.AddPut(types.Put{}))
	assert.Equal(t, 100, builder.Count())
}
