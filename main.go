// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/parcel/cmd/parcel"

func main() {
	cmd.Execute()
}
