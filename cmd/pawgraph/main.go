// Command pawgraph builds a demonstration heap across several polling
// threads, captures a snapshot, and prints what the walker found. It doubles
// as a smoke test for the safepoint protocol outside the test suite.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phroun/pawgraph"
	"golang.org/x/term"
)

var version = "dev" // set via -ldflags at build time

func main() {
	var (
		debug       = flag.Bool("debug", false, "enable categorized debug logging")
		numThreads  = flag.Int("threads", 4, "worker threads to spawn")
		numObjects  = flag.Int("objects", 64, "objects allocated per thread")
		timeout     = flag.Duration("timeout", 5*time.Second, "safepoint timeout")
		rootsOnly   = flag.Bool("roots", false, "capture only the root frontier")
		kindFilter  = flag.String("kind", "", "also count captured objects of one kind (object, class, thread, fiber, hash, array, queue, proc)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pawgraph %s\n", version)
		return
	}

	eng := pawgraph.New(&pawgraph.Config{
		Debug:            *debug,
		SafepointTimeout: *timeout,
	})
	if *debug {
		eng.Logger().EnableAllCategories()
	}

	// Globals and exit handlers so the process-wide roots are non-trivial.
	shared := eng.NewObject()
	shared.SetProperty("label", eng.Intern("shared"))
	eng.SetGlobal("$shared", shared)
	eng.AddExitHandler(eng.NewObject())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < *numThreads; i++ {
		wg.Add(1)
		name := fmt.Sprintf("worker-%d", i)
		eng.SpawnThread(name, func(t *pawgraph.ThreadContext) {
			defer wg.Done()

			// Build a chain of objects anchored in a frame slot, so each
			// worker's allocations are reachable only through its stack.
			frame := pawgraph.NewFrame(nil, nil, nil)
			var prev *pawgraph.HeapObject
			for j := 0; j < *numObjects; j++ {
				obj := eng.NewObject()
				if prev != nil {
					obj.SetProperty("next", prev)
				}
				prev = obj
			}
			frame.SetLocal("chain", prev)
			t.PushFrame(frame)

			for {
				select {
				case <-stop:
					return
				default:
					t.Poll()
					time.Sleep(200 * time.Microsecond)
				}
			}
		})
	}

	// Give workers a moment to build their heaps.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	var (
		set *pawgraph.ObjectSet
		err error
	)
	if *rootsOnly {
		set, err = eng.SnapshotRoots(eng.MainThread())
	} else {
		set, err = eng.SnapshotAll(eng.MainThread())
	}
	elapsed := time.Since(start)

	close(stop)
	wg.Wait()

	if err != nil {
		fmt.Fprintf(os.Stderr, "snapshot failed: %v\n", err)
		os.Exit(1)
	}

	printReport(eng, set, elapsed, *rootsOnly, *kindFilter)
}

// printReport summarizes the capture, sized to the terminal when stdout is one
func printReport(eng *pawgraph.Engine, set *pawgraph.ObjectSet, elapsed time.Duration, rootsOnly bool, kindFilter string) {
	width := 60
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && w < width {
		width = w
	}
	rule := strings.Repeat("-", width)

	mode := "all reachable"
	if rootsOnly {
		mode = "roots only"
	}

	stats := eng.Stats()
	fmt.Println(rule)
	fmt.Printf("snapshot (%s) in %s\n", mode, elapsed)
	fmt.Printf("captured entities: %d\n", set.Len())
	fmt.Printf("heap objects:      %d\n", stats.Objects)
	fmt.Printf("threads: %d, fibers: %d, symbols: %d\n", stats.Threads, stats.Fibers, stats.Symbols)

	kinds := make([]pawgraph.ObjectKind, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Printf("  %-8s %d\n", k, stats.ByKind[k])
	}

	if kindFilter != "" {
		want := pawgraph.ObjectKindFromString(kindFilter)
		captured := 0
		for _, m := range set.Members() {
			if obj, ok := m.(*pawgraph.HeapObject); ok && obj.Kind() == want {
				captured++
			}
		}
		fmt.Printf("captured %s objects: %d\n", want, captured)
	}
	fmt.Println(rule)
}
