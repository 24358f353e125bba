package main

import (
	"os"

	"github.com/Brownie44l1/crop-disease-api/internal/cli"
)

func main() {
	cli.Execute(os.Args[1:])
}
