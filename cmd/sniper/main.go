package main

import "transfer-sniper/internal/cli"

func main() {
	cli.Execute()
}
