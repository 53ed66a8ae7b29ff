package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres://%zz", Options{})
	require.ErrorContains(t, err, "platform/db: parse config")
}
