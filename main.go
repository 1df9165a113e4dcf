// The main package for the hiscore-crawler executable.
package main

import (
	"github.com/JakeFAU/hiscore-crawler/cmd"
)

func main() {
	cmd.Execute()
}
