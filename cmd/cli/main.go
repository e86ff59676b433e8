package main

import (
	"fmt"
	"os"
	"time"
)

func init() {
	time.Local = time.UTC
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
