// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

// Command picalo discovers Principal Interaction Components from a cis-eQTL
// panel (§6).
package main

import (
	"os"

	"github.com/bitjungle/picalo/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
