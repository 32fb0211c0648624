package archive

import (
	"fmt"
	"strings"
)

// Status is the packed archive status computed once at process bootstrap.
type Status uint32

const (
	// FlagDumpingArchive is set for the whole life of a process that
	// produces an archive, static or dynamic.
	FlagDumpingArchive Status = 1 << iota
	// FlagDumpingStaticArchive is set when the archive being produced is a
	// base archive. Requires FlagDumpingArchive.
	FlagDumpingStaticArchive
	// FlagUsingArchive is set when an archive was mapped for reuse.
	FlagUsingArchive
	// FlagLoggingLambdaFormInvokers enables lambda-form and species logging.
	FlagLoggingLambdaFormInvokers

	statusMask = FlagDumpingArchive | FlagDumpingStaticArchive | FlagUsingArchive | FlagLoggingLambdaFormInvokers
)

// DumpingArchive reports FlagDumpingArchive.
func (s Status) DumpingArchive() bool { return s&FlagDumpingArchive != 0 }

// DumpingStaticArchive reports FlagDumpingStaticArchive.
func (s Status) DumpingStaticArchive() bool { return s&FlagDumpingStaticArchive != 0 }

// DumpingDynamicArchive reports a dump that is not a static dump.
func (s Status) DumpingDynamicArchive() bool { return s.DumpingArchive() && !s.DumpingStaticArchive() }

// UsingArchive reports FlagUsingArchive.
func (s Status) UsingArchive() bool { return s&FlagUsingArchive != 0 }

// LoggingLambdaFormInvokers reports FlagLoggingLambdaFormInvokers.
func (s Status) LoggingLambdaFormInvokers() bool { return s&FlagLoggingLambdaFormInvokers != 0 }

// Validate checks the invariants a bootstrap must uphold.
func (s Status) Validate() error {
	if s&^statusMask != 0 {
		return fmt.Errorf("unknown status bits %#x", uint32(s&^statusMask))
	}
	if s.DumpingStaticArchive() && !s.DumpingArchive() {
		return fmt.Errorf("status %s: static dump without dump", s)
	}
	return nil
}

func (s Status) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	if s.DumpingArchive() {
		parts = append(parts, "dump")
	}
	if s.DumpingStaticArchive() {
		parts = append(parts, "static")
	}
	if s.UsingArchive() {
		parts = append(parts, "use")
	}
	if s.LoggingLambdaFormInvokers() {
		parts = append(parts, "log-lambda-forms")
	}
	if rest := s &^ statusMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}
