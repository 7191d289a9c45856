// The main package for the bookmark-summarizer executable.
package main

import (
	"github.com/JakeFAU/bookmark-summarizer/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
