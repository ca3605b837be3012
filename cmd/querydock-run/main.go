package main

import (
	"context"
	"os"

	"github.com/querydock/querydock/internal/cli/querydockrun"
)

func main() {
	options := querydockrun.Options{
		Lookup: os.LookupEnv,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	code := querydockrun.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}
