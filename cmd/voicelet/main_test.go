// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"io"
	"testing"

	"go.astrophena.name/bots/internal/cli"
	"go.astrophena.name/bots/internal/testutil"
)

func TestLongPollClientTimeout(t *testing.T) {
	t.Parallel()

	e := &engine{tgToken: "123:test", openAIKey: "k"}
	testutil.AssertNilError(t, e.doInit(t.Context(), &cli.Env{Stderr: io.Discard}))

	// getUpdates blocks for up to longPollTimeout on an idle chat; a client
	// timeout at or below that turns every idle poll into an error.
	if e.tg.HTTPClient == nil || e.tg.HTTPClient.Timeout <= longPollTimeout {
		t.Fatalf("Telegram HTTP client timeout must exceed the %v long poll, got %+v", longPollTimeout, e.tg.HTTPClient)
	}
}
