// This program is a command line wallet for the dpos node.
package main

import "github.com/ardanlabs/dpos/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
