// exit_1 fails immediately, like a llama-server that cannot load its model.
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "error: failed to load model")
	os.Exit(1)
}
