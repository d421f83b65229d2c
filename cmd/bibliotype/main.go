package main

import (
	"os"

	"github.com/vanajmoorthy/bibliotype/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
