// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.astrophena.name/bots/internal/testutil"
)

func testStore(t *testing.T) *Store {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	testutil.AssertNilError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveValue(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	testutil.AssertNilError(t, s.SaveValue(ctx, 42, "honesty"))

	got, err := s.Value(ctx, 42)
	testutil.AssertNilError(t, err)
	testutil.AssertEqual(t, got, "honesty")
}

func TestSaveValueDuplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	testutil.AssertNilError(t, s.SaveValue(ctx, 42, "honesty"))

	err := s.SaveValue(ctx, 42, "curiosity")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("got %v, want ErrExists", err)
	}

	// The original value must be intact.
	got, err := s.Value(ctx, 42)
	testutil.AssertNilError(t, err)
	testutil.AssertEqual(t, got, "honesty")
}

func TestValueMissing(t *testing.T) {
	s := testStore(t)

	got, err := s.Value(context.Background(), 1)
	testutil.AssertNilError(t, err)
	testutil.AssertEqual(t, got, "")
}
