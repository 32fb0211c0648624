package main

import (
	"errors"
	"fmt"

	"github.com/chazu/cds/archive"
	"github.com/chazu/cds/bootstrap"
	"github.com/chazu/cds/config"
	"github.com/chazu/cds/corelib"
	"github.com/chazu/cds/vm"
	"github.com/tliron/commonlog"
)

// session is a booted VM with its archive state.
type session struct {
	boot     *bootstrap.Bootstrap
	gate     *archive.Gate
	graph    *archive.ObjectGraph
	machine  *vm.VM
	lib      *corelib.Library
	invokers *corelib.Invokers
	closers  []func() error
}

// boot resolves the archive status, installs the process-wide gate and
// brings up the boot library.
func boot(cfg *config.Config) (*session, error) {
	b, err := bootstrap.Open(cfg, buildIdentity(cfg))
	if err != nil {
		return nil, err
	}
	s := &session{boot: b, closers: []func() error{b.Close}}

	sinks := archive.MultiSink{archive.NewLoggerSink(commonlog.GetLogger("cds.lambda"))}
	if path := cfg.ClassListPath(); path != "" {
		cl, err := archive.OpenClassList(path)
		if err != nil {
			s.Close()
			return nil, err
		}
		sinks = append(sinks, cl)
		s.closers = append(s.closers, cl.Close)
	}

	s.gate, err = archive.Install(b, archive.WithSink(sinks))
	if err != nil {
		s.Close()
		return nil, err
	}

	s.machine = vm.NewVM()
	s.lib, err = corelib.Install(s.machine, s.gate)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.graph = archive.NewObjectGraph(s.gate, s.machine)
	s.machine.SetArchiveHook(s.graph)
	s.invokers = corelib.NewInvokers(s.machine, s.gate)

	platform, system := s.machine.CreateLoaders()
	if err := s.graph.DefineArchivedModules(platform, system); err != nil {
		log.Warningf("archived modules: %v", err)
	}
	if err := s.lib.DefineModules(platform, system); err != nil {
		s.Close()
		return nil, fmt.Errorf("module graph: %w", err)
	}
	if err := s.lib.InitializeAll(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.warmInvokers(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// warmInvokers generates the invoker forms every boot needs.
func (s *session) warmInvokers() error {
	for _, sig := range []string{"(L)L", "(LL)L", "(LI)V"} {
		mt, err := corelib.ParseMethodType(sig)
		if err != nil {
			return err
		}
		for _, f := range []struct{ holder, kind string }{
			{corelib.InvokersHolder, "invokeExact_MT"},
			{corelib.DirectHandleHolder, "invokeStatic"},
			{corelib.DelegatingHolder, "delegate"},
		} {
			if _, err := s.invokers.Invoker(f.holder, f.kind, mt); err != nil {
				return err
			}
		}
	}
	for _, types := range []string{"L", "LL"} {
		if _, err := s.invokers.Species(types); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}
