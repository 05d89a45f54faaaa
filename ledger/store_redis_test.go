package ledger

import (
	"context"
	"testing"
)

func TestRedisStore(t *testing.T) {
	t.Skip("live test, need redis running locally")

	testStore(t, func() Store {
		s, err := NewRedisStore(context.Background(), "redis://localhost:6379/0")
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}
