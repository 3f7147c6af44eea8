/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "flowclaw/cmd"

func main() {
	cmd.Execute()
}
