// Public domain.

package main

import "github.com/vyoma-m/crabpol/internal/cpprog"

func main() {
	cpprog.Main()
}
