// transportctl is the operator CLI for a running transportd fleet: it can
// send one-off pings, and open a live dashboard onto a node's scheduler
// state.
package main

import "github.com/strand-protocol/strand-transport/cmd/transportctl/cmd"

func main() {
	cmd.Execute()
}
