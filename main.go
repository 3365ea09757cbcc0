package main

import "github.com/kozaktomas/faceauth-station/cmd"

func main() {
	cmd.Execute()
}
