// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package provider

import (
	"fmt"
)

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// appPreRelease may be set at link time, for example
// -ldflags "-X github.com/btcsuite/btcprovider/provider.appPreRelease=beta".
var appPreRelease = "alpha"

// Version returns the semantic version of the provider.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, appPreRelease)
	}

	return version
}
