package main

import "github.com/Chirlanio/mercury-sync/cmd"

func main() { cmd.Execute() }
