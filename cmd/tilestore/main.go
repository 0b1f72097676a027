// Command tilestore serves and administers tile storage graphs.
package main

import "github.com/MeKo-Tech/tilestore/internal/cmd"

func main() {
	cmd.Execute()
}
