package main

import "github.com/vibast-solutions/ms-go-solana-pay/cmd"

func main() {
	cmd.Execute()
}
