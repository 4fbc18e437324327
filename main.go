package main

import "github.com/ValentinKolb/fsKV/cmd"

func main() {
	cmd.Execute()
}
