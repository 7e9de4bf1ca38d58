package main

import "github.com/wentf9/xops-underlay/cmd"

func main() {
	cmd.Execute()
}
