// Command contextd indexes a project directory and serves hybrid
// semantic/lexical search over HTTP and the stdio agent protocol.
package main

import "github.com/sandy-sachin7/contextd/internal/cli"

func main() {
	cli.Execute()
}
