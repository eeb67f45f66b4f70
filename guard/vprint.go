package guard

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/glycerine/paxlock"
)

// for tons of debug output
var verboseVerbose bool = false

const rfc3339NanoNumericTZ0pad = "2006-01-02T15:04:05.000000000-07:00"

func pp(format string, a ...interface{}) {
	if verboseVerbose {
		tsPrintf(format, a...)
	}
}

func alwaysPrintf(format string, a ...interface{}) {
	tsPrintf(format, a...)
}

// time-stamped printf. Shares the paxlock lock so
// lines from both packages do not interleave.
func tsPrintf(format string, a ...interface{}) {
	paxlock.TsPrintfMut.Lock()
	fmt.Fprintf(os.Stdout, "\n%s [goID %v] %s ", fileLine(3), paxlock.GoroNumber(), time.Now().UTC().Format(rfc3339NanoNumericTZ0pad))
	fmt.Fprintf(os.Stdout, format+"\n", a...)
	paxlock.TsPrintfMut.Unlock()
}

func fileLine(depth int) string {
	_, fileName, fileLine, ok := runtime.Caller(depth)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", path.Base(fileName), fileLine)
}

func panicOn(err error) {
	if err != nil {
		panic(err)
	}
}
