// Command ewfcat opens an EWF/E01/S01 segment set and either prints
// its case metadata and media geometry, or streams the logical image
// to stdout. It exists to exercise the library end to end, the way
// the teacher repo's examples/ directory exercised EWFImage.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aeonvault/goewf"
)

func main() {
	infoOnly := flag.Bool("info", false, "print header/volume metadata instead of streaming data")
	tolerance := flag.Int("tolerance", int(ewf.ToleranceCompensate), "error tolerance level (0=None,1=DataOnly,2=Compensate,3=NonFatal)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ewfcat [-info] <segment-file-or-basename>")
		os.Exit(2)
	}

	h, err := ewf.Open(flag.Args(), ewf.ModeRead, ewf.WithErrorTolerance(ewf.ErrorTolerance(*tolerance)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ewfcat:", err)
		os.Exit(1)
	}
	defer h.Close()

	if *infoOnly {
		printInfo(h)
		return
	}
	if err := stream(h, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ewfcat:", err)
		os.Exit(1)
	}
}

func printInfo(h *ewf.Handle) {
	if v := h.Volume(); v != nil {
		fmt.Printf("media size: %d bytes (%d sectors of %d bytes, %d chunks)\n",
			h.MediaSize(), v.SectorCount, v.BytesPerSector, v.ChunkCount)
	}
	if hv := h.Headers(); hv != nil {
		fmt.Printf("case number:     %s\n", hv.CaseNumber)
		fmt.Printf("evidence number: %s\n", hv.EvidenceNumber)
		fmt.Printf("examiner:        %s\n", hv.ExaminerName)
		fmt.Printf("description:     %s\n", hv.Description)
	}
	if errs := h.CRCErrorChunks(); len(errs) > 0 {
		fmt.Printf("chunks with CRC/decompression errors: %v\n", errs)
	}
}

func stream(h *ewf.Handle, w io.Writer) error {
	buf := make([]byte, 1<<20)
	for {
		n, err := h.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if n == 0 || err != nil {
			return err
		}
	}
}
