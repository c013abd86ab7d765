package server

import (
	"github.com/duskline/backend/3rdparty/glog"
	"github.com/pkg/errors"
)

// Runner is anything cmd/backend supervises for the life of the process: the
// write runner, the location-index sweeper, the stats flusher, the HTTP/WS
// listener. Adapted from the teacher's cos.Runner + rungroup (ais/daemon.go),
// generalized off the package-global daemon singleton into a struct any
// caller can construct.
type Runner interface {
	Name() string
	Run() error
	Stop(err error)
}

// RunGroup fans a set of named Runners out and stops all of them as soon as
// any one exits, mirroring the teacher's "target (or proxy) first" shutdown
// order: whichever runner exits first triggers Stop on everyone else.
type RunGroup struct {
	rs    map[string]Runner
	errCh chan error
}

func NewRunGroup() *RunGroup {
	return &RunGroup{rs: make(map[string]Runner, 8)}
}

func (g *RunGroup) Add(r Runner) {
	if _, exists := g.rs[r.Name()]; exists {
		panic(errors.Errorf("runner %q already registered", r.Name()))
	}
	g.rs[r.Name()] = r
}

// Run starts every registered runner and blocks until all have exited,
// returning the error that caused the first exit (nil on a clean shutdown).
func (g *RunGroup) Run() error {
	g.errCh = make(chan error, len(g.rs))

	for _, r := range g.rs {
		go func(r Runner) {
			err := r.Run()
			if err != nil {
				glog.Warningf("runner [%s] exited with err [%v]", r.Name(), err)
			}
			g.errCh <- err
		}(r)
	}

	first := <-g.errCh
	for _, r := range g.rs {
		r.Stop(first)
	}
	for i := 0; i < len(g.rs)-1; i++ {
		<-g.errCh
	}
	return first
}
