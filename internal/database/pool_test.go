package database

import (
	"context"
	"testing"
)

func TestConnect_InvalidDSNReturnsError(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-valid-dsn", 5, 1)
	if err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
