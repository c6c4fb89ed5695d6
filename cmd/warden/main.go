// Warden - cloud security posture scanner.
// Inventory. Check. Report.
package main

import "os"

func main() {
	os.Exit(Execute(os.Args[1:]))
}
