package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"actcollective.org/momentum/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
