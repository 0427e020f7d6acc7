package main

import (
	"os"

	"stocklab/internal/labd"
)

func main() {
	os.Exit(labd.Run(os.Args[1:]))
}
