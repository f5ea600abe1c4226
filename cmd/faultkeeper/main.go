package main

import "github.com/vietddude/faultkeeper/internal/cli"

func main() {
	cli.Execute()
}
