package main

import (
	cmd "github.com/soundscribe/ml-backend/cmd/soundscribe"
)

func main() {
	cmd.Execute()
}
