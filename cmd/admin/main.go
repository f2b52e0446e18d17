package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/patientvault/internal/admin"
)

func main() {
	root := admin.NewRootCmd(admin.OpenPostgres, os.Stdin, os.Stdout)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
