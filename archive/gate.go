package archive

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("cds.archive")

var ErrAlreadyInstalled = errors.New("archive gate already installed")

// ---------------------------------------------------------------------------
// Gate: write-once, read-many archive status
// ---------------------------------------------------------------------------

// Gate answers archive status predicates. The status is computed on first
// use by a single call to the bootstrap's privileged query and never changes
// afterwards, so predicates are safe from any goroutine without locking.
type Gate struct {
	boot   Bootstrap
	sink   Sink
	once   sync.Once
	status Status
}

// Option configures a Gate.
type Option func(*Gate)

// WithSink directs lambda-form and species log lines to s.
func WithSink(s Sink) Option {
	return func(g *Gate) { g.sink = s }
}

// NewGate creates a gate over b. Nothing is queried until the first
// predicate call.
func NewGate(b Bootstrap, opts ...Option) *Gate {
	g := &Gate{boot: b, sink: NewLoggerSink(log)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bootstrap returns the privileged collaborator behind the gate.
func (g *Gate) Bootstrap() Bootstrap {
	return g.boot
}

// Status returns the packed status, computing it on first use.
func (g *Gate) Status() Status {
	g.once.Do(g.compute)
	return g.status
}

func (g *Gate) compute() {
	if g.boot == nil {
		fatalf("%v", ErrNotBootstrapped)
		return
	}
	st, err := g.boot.Status()
	if err != nil {
		fatalf("archive status query failed: %v", err)
		return
	}
	if err := st.Validate(); err != nil {
		fatalf("archive status is inconsistent: %v", err)
		return
	}
	g.status = st
	log.Debugf("archive status: %s", st)
}

// IsDumpingArchive reports whether this process produces an archive.
func (g *Gate) IsDumpingArchive() bool { return g.Status().DumpingArchive() }

// IsDumpingStaticArchive reports whether this process produces a base archive.
func (g *Gate) IsDumpingStaticArchive() bool { return g.Status().DumpingStaticArchive() }

// IsDumpingDynamicArchive reports whether this process produces a top layer.
func (g *Gate) IsDumpingDynamicArchive() bool { return g.Status().DumpingDynamicArchive() }

// IsUsingArchive reports whether an archive was mapped for reuse.
func (g *Gate) IsUsingArchive() bool { return g.Status().UsingArchive() }

// IsLoggingLambdaFormInvokers reports whether lambda-form logging is on.
func (g *Gate) IsLoggingLambdaFormInvokers() bool { return g.Status().LoggingLambdaFormInvokers() }

// ---------------------------------------------------------------------------
// Diagnostic logging
// ---------------------------------------------------------------------------

// LogLambdaFormInvoker records a generated lambda-form holder method as
// "prefix holder name type". Nothing is formatted when logging is off.
func (g *Gate) LogLambdaFormInvoker(prefix, holder, name string, typ fmt.Stringer) {
	if !g.IsLoggingLambdaFormInvokers() {
		return
	}
	g.emit(prefix + " " + holder + " " + name + " " + safeString(typ))
}

// LogSpeciesType records a generated species class as "prefix className".
// Nothing is formatted when logging is off.
func (g *Gate) LogSpeciesType(prefix, className string) {
	if !g.IsLoggingLambdaFormInvokers() {
		return
	}
	g.emit(prefix + " " + className)
}

func (g *Gate) emit(line string) {
	defer func() {
		if r := recover(); r != nil {
			log.Debugf("dropped log line: sink panicked: %v", r)
		}
	}()
	if g.sink != nil {
		g.sink.Emit(line)
	}
}

// safeString formats s without letting a broken Stringer escape.
func safeString(s fmt.Stringer) (out string) {
	if s == nil {
		return "null"
	}
	defer func() {
		if r := recover(); r != nil {
			out = "?"
		}
	}()
	return s.String()
}

// ---------------------------------------------------------------------------
// Process-wide gate
// ---------------------------------------------------------------------------

var installed atomic.Pointer[Gate]

// Install makes a gate over b the process-wide gate. It succeeds once.
func Install(b Bootstrap, opts ...Option) (*Gate, error) {
	g := NewGate(b, opts...)
	if !installed.CompareAndSwap(nil, g) {
		return nil, ErrAlreadyInstalled
	}
	return g, nil
}

// Default returns the process-wide gate. Calling it before Install is a
// startup ordering defect and is fatal.
func Default() *Gate {
	if g := installed.Load(); g != nil {
		return g
	}
	fatalf("%v", ErrNotBootstrapped)
	return frozen(0)
}

// frozen returns a gate whose status is already fixed.
func frozen(st Status) *Gate {
	g := &Gate{status: st}
	g.once.Do(func() {})
	return g
}

// IsDumpingArchive queries the process-wide gate.
func IsDumpingArchive() bool { return Default().IsDumpingArchive() }

// IsDumpingStaticArchive queries the process-wide gate.
func IsDumpingStaticArchive() bool { return Default().IsDumpingStaticArchive() }

// IsUsingArchive queries the process-wide gate.
func IsUsingArchive() bool { return Default().IsUsingArchive() }

// IsLoggingLambdaFormInvokers queries the process-wide gate.
func IsLoggingLambdaFormInvokers() bool { return Default().IsLoggingLambdaFormInvokers() }

// LogLambdaFormInvoker logs through the process-wide gate.
func LogLambdaFormInvoker(prefix, holder, name string, typ fmt.Stringer) {
	Default().LogLambdaFormInvoker(prefix, holder, name, typ)
}

// LogSpeciesType logs through the process-wide gate.
func LogSpeciesType(prefix, className string) {
	Default().LogSpeciesType(prefix, className)
}

// ---------------------------------------------------------------------------
// Fatal errors
// ---------------------------------------------------------------------------

var fatalHandler atomic.Pointer[func(msg string)]

// SetFatalHandler replaces the handler for startup-ordering defects and
// returns the previous one. The default logs at critical level and exits.
func SetFatalHandler(h func(msg string)) func(msg string) {
	var prev func(string)
	if p := fatalHandler.Swap(&h); p != nil {
		prev = *p
	}
	if prev == nil {
		prev = exitFatal
	}
	return prev
}

func exitFatal(msg string) {
	log.Critical(msg)
	fmt.Fprintf(os.Stderr, "fatal: %s\n", msg)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p := fatalHandler.Load(); p != nil && *p != nil {
		(*p)(msg)
		return
	}
	exitFatal(msg)
}
