package composables

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestUseLogger(t *testing.T) {
	require.Nil(t, UseLogger(context.Background()))

	entry := logrus.NewEntry(logrus.New())
	require.Same(t, entry, UseLogger(WithLogger(context.Background(), entry)))
}

func TestUsePool_Missing(t *testing.T) {
	_, err := UsePool(context.Background())
	require.ErrorIs(t, err, ErrNoPool)

	_, err = UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

func TestRequestID(t *testing.T) {
	_, ok := UseRequestID(context.Background())
	require.False(t, ok)

	id, ok := UseRequestID(WithRequestID(context.Background(), "r-1"))
	require.True(t, ok)
	require.Equal(t, "r-1", id)
}
