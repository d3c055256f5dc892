// Package main implements the botgate CLI.
package main

func main() {
	Execute()
}
