package main

import "github.com/spample/spample/cmd"

// TODO: predict command exposing Results.Predict/PredictDraws at a new site file

func main() {
	cmd.Execute()
}
