// Command server runs the HTTP prediction API. It is "cropdd serve" with the same flags.
package main

import (
	"os"

	"github.com/Brownie44l1/crop-disease-api/internal/cli"
)

func main() {
	cli.Execute(append([]string{"serve"}, os.Args[1:]...))
}
