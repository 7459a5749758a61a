// bagfilter removes channels from ROS1 and ROS2 bags.
package main

import (
	"os"

	"github.com/hupe1980/bagfilter/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
