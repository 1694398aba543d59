// Public domain.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/vyoma-m/crabpol/internal/response"
)

const versionString = "ixpresp version 0.1"
const copyrightString = "Public domain."

func main() {
	key := response.DefaultKey()
	flag.Usage = func() {
		os.Stderr.WriteString(
			"Usage: ixpresp [options] <channel>...\n")
		flag.PrintDefaults()
		os.Stderr.WriteString(`
For full documentation:
   go doc github.com/vyoma-m/crabpol/ixpresp
`)
	}
	root := flag.String("r", "", "CalDB root directory")
	flag.StringVar(&key.Detector, "d", key.Detector, "detector unit, d1, d2, or d3")
	flag.StringVar(&key.CalDB, "caldb", key.CalDB, "CalDB version")
	flag.StringVar(&key.Recon, "recon", key.Recon, "event reconstruction version")
	vers := flag.Bool("v", false, "display version and copyright")
	flag.Parse()
	if *vers {
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	}
	if *root == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	ch := make([]int, flag.NArg())
	for i, a := range flag.Args() {
		var err error
		if ch[i], err = strconv.Atoi(a); err != nil {
			log.Fatalln("Bad channel:", err)
		}
	}
	r, err := response.Open(*root, key)
	if err != nil {
		log.Fatalln(err)
	}
	pts, err := r.Resolve(ch)
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Println("Channel  Energy(keV)  Aeff(cm2)   Modf")
	for _, p := range pts {
		fmt.Printf("%7d  %11.4f  %9.3f  %.4f\n", p.Channel, p.Energy, p.Aeff, p.Modf)
	}
}
