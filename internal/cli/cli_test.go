// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"

	"go.astrophena.name/bots/internal/testutil"
)

func testEnv(args ...string) (*Env, *bytes.Buffer) {
	var stderr bytes.Buffer
	return &Env{
		Args:   args,
		Getenv: func(string) string { return "" },
		Stdin:  strings.NewReader(""),
		Stdout: &stderr,
		Stderr: &stderr,
	}, &stderr
}

func TestRun(t *testing.T) {
	var ran bool
	app := AppFunc(func(ctx context.Context, env *Env) error {
		ran = true
		return nil
	})

	env, _ := testEnv()
	testutil.AssertNilError(t, Run(context.Background(), app, env))
	testutil.AssertEqual(t, ran, true)
}

func TestRunVersionFlag(t *testing.T) {
	app := AppFunc(func(ctx context.Context, env *Env) error {
		t.Fatal("app should not run with -version")
		return nil
	})

	env, stderr := testEnv("-version")
	err := Run(context.Background(), app, env)
	if !errors.Is(err, ErrExitVersion) {
		t.Fatalf("Run() = %v, want ErrExitVersion", err)
	}
	testutil.AssertEqual(t, isPrintableError(err), false)
	if stderr.Len() == 0 {
		t.Fatal("version not printed to stderr")
	}
}

func TestRunFlagParseError(t *testing.T) {
	app := AppFunc(func(ctx context.Context, env *Env) error { return nil })

	env, _ := testEnv("-no-such-flag")
	err := Run(context.Background(), app, env)
	if err == nil {
		t.Fatal("expected error, got none")
	}
	testutil.AssertEqual(t, isPrintableError(err), false)
}

func TestRunPassesRemainingArgs(t *testing.T) {
	var got []string
	app := AppFunc(func(ctx context.Context, env *Env) error {
		got = env.Args
		return nil
	})

	env, _ := testEnv("hello", "world")
	testutil.AssertNilError(t, Run(context.Background(), app, env))
	testutil.AssertEqual(t, got, []string{"hello", "world"})
}

func TestHelpIsUnprintable(t *testing.T) {
	env, _ := testEnv("-help")
	err := Run(context.Background(), AppFunc(func(context.Context, *Env) error { return nil }), env)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("Run() = %v, want flag.ErrHelp", err)
	}
	testutil.AssertEqual(t, isPrintableError(err), false)
}
