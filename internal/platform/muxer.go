package platform

import (
	"bufio"
	"io"
	"log"
	"sync"
)

// StreamSource identifies which process pipe a line arrived on
type StreamSource string

const (
	SourceStdout StreamSource = "stdout"
	SourceStderr StreamSource = "stderr"
)

// Scanner buffer sizing
const (
	ScanInitialBufferSize = 64 * 1024
	ScanMaxBufferSize     = 1024 * 1024
)

// StreamLine is one unit on the merged output channel. EOF marks the
// permanent end of one source; exactly one EOF marker is emitted per
// source, read errors included, so the consumer never waits on a source
// that cannot signal again.
type StreamLine struct {
	Text   string
	Source StreamSource
	EOF    bool
}

// MergeLines merges the two output pipes of a download process into a
// single channel. Per-source line order is preserved; between sources only
// arrival interleaving holds. The channel is closed once every source has
// emitted its EOF marker, so ranging over it terminates.
func MergeLines(stdout, stderr io.Reader) <-chan StreamLine {
	return mergeSources(map[StreamSource]io.Reader{
		SourceStdout: stdout,
		SourceStderr: stderr,
	})
}

// mergeSources fans in any number of named sources. Each feeder signals
// completion exactly once; the closer goroutine counts completions against
// the source count before closing the channel.
func mergeSources(sources map[StreamSource]io.Reader) <-chan StreamLine {
	out := make(chan StreamLine)

	var wg sync.WaitGroup
	for source, reader := range sources {
		wg.Add(1)
		go func(source StreamSource, reader io.Reader) {
			defer wg.Done()
			feedLines(source, reader, out)
		}(source, reader)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// feedLines relays one source line by line and terminates it with an EOF
// marker under every exit path.
func feedLines(source StreamSource, reader io.Reader, out chan<- StreamLine) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, ScanInitialBufferSize), ScanMaxBufferSize)

	for scanner.Scan() {
		out <- StreamLine{Text: scanner.Text(), Source: source}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Read error on %s stream: %v", source, err)
	}

	out <- StreamLine{Source: source, EOF: true}
}
