// Command slideinfo prints the level geometry, properties, and
// associated images of a whole-slide image file.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/pspoerri/slidepyramid/internal/slide"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: slideinfo <file>\n")
		os.Exit(1)
	}
	path := os.Args[1]

	if !slide.CanOpen(path) {
		fmt.Fprintf(os.Stderr, "Error: no backend recognizes %s\n", path)
		os.Exit(1)
	}

	s, err := slide.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("Levels: %d\n", s.LevelCount())
	for i := 0; i < s.LevelCount(); i++ {
		w, h, err := s.LevelDimensions(i)
		if err != nil {
			fmt.Printf("  level %d: ERROR: %v\n", i, err)
			continue
		}
		ds, _ := s.LevelDownsample(i)
		fmt.Printf("  level %d: %dx%d, downsample=%.3f\n", i, w, h, ds)
	}

	names := s.PropertyNames()
	sort.Strings(names)
	fmt.Printf("Properties:\n")
	for _, name := range names {
		v, _ := s.PropertyValue(name)
		fmt.Printf("  %s = %s\n", name, v)
	}

	assoc := s.AssociatedImageNames()
	sort.Strings(assoc)
	fmt.Printf("Associated images:\n")
	for _, name := range assoc {
		w, h, _ := s.AssociatedImageDimensions(name)
		fmt.Printf("  %s: %dx%d\n", name, w, h)
	}
}
