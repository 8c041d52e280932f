package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/infinite-dreams/igame-bootstrapper/internal/depend"
	"github.com/infinite-dreams/igame-bootstrapper/internal/transfer"
)

var (
	a = depend.DotNet48
	b = depend.WebView2
	c = depend.IGameInstaller
)

type fakeDownloader struct {
	mu    sync.Mutex
	order []depend.Kind
	fail  map[depend.Kind]error
	// before runs at the start of every download.
	before func(depend.Kind)
	// onDone is called after each successful download.
	onDone func(depend.Kind)
}

func (d *fakeDownloader) Download(_ context.Context, k depend.Kind, sink transfer.ProgressSink) error {
	if d.before != nil {
		d.before(k)
	}
	d.mu.Lock()
	d.order = append(d.order, k)
	err := d.fail[k]
	d.mu.Unlock()
	if err != nil {
		return err
	}
	for _, pct := range []int{25, 50, 100} {
		sink(pct)
	}
	if d.onDone != nil {
		d.onDone(k)
	}
	return nil
}

func (d *fakeDownloader) downloaded() []depend.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.order)
}

type fakeInstaller struct {
	gates  map[depend.Kind]chan struct{}
	fail   map[depend.Kind]error
	delay  func(depend.Kind) time.Duration
	panics depend.Kind
}

func (i *fakeInstaller) Install(_ context.Context, k depend.Kind) error {
	if k == i.panics {
		panic("setup crashed")
	}
	if g, ok := i.gates[k]; ok {
		<-g
	}
	if i.delay != nil {
		time.Sleep(i.delay(k))
	}
	return i.fail[k]
}

type recordingSink struct {
	mu       sync.Mutex
	download []depend.Kind
	install  []depend.Kind
}

func (s *recordingSink) DownloadFailed(k depend.Kind, _ error) {
	s.mu.Lock()
	s.download = append(s.download, k)
	s.mu.Unlock()
}

func (s *recordingSink) InstallFailed(k depend.Kind, _ error) {
	s.mu.Lock()
	s.install = append(s.install, k)
	s.mu.Unlock()
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.download), len(s.install)
}

func waitDone(t *testing.T, p *Pipeline) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("pipeline did not complete: %+v", p.Snapshot())
	}
}

func checkInvariants(t *testing.T, s Snapshot) {
	t.Helper()
	for _, k := range s.Installing {
		if slices.Contains(s.Installed, k) {
			t.Errorf("%s is both installing and installed", k)
		}
	}
	for _, k := range s.Installed {
		if !slices.Contains(s.Needed, k) {
			t.Errorf("%s installed but not needed", k)
		}
	}
	seen := map[depend.Kind]bool{}
	for _, k := range s.Installed {
		if seen[k] {
			t.Errorf("%s installed twice", k)
		}
		seen[k] = true
	}
	if s.Progress < 0 || s.Progress > 100 {
		t.Errorf("progress out of range: %d", s.Progress)
	}
}

func TestCompletionWaitsForSlowestInstall(t *testing.T) {
	gateA := make(chan struct{})
	inst := &fakeInstaller{gates: map[depend.Kind]chan struct{}{a: gateA}}
	sink := &recordingSink{}
	p := New([]depend.Kind{a, b, c}, &fakeDownloader{}, inst, sink)
	p.Run(context.Background())

	var finished []depend.Kind
	for len(finished) < 2 {
		select {
		case r := <-p.Results():
			finished = append(finished, r.Kind)
		case <-time.After(5 * time.Second):
			t.Fatal("B and C did not finish")
		}
	}
	if slices.Contains(finished, a) {
		t.Fatalf("A finished while gated: %v", finished)
	}

	select {
	case <-p.Done():
		t.Fatal("completed before A was installed")
	case <-time.After(50 * time.Millisecond):
	}

	s := p.Snapshot()
	checkInvariants(t, s)
	if !slices.Equal(s.Installing, []depend.Kind{a}) {
		t.Fatalf("installing = %v, want [A]", s.Installing)
	}
	if !strings.Contains(s.InstallDescription, a.Name()) {
		t.Fatalf("install description = %q", s.InstallDescription)
	}
	close(gateA)
	waitDone(t, p)
	<-p.driverDone

	s = p.Snapshot()
	checkInvariants(t, s)
	if !s.Complete() || len(s.Installing) != 0 {
		t.Fatalf("final state = %+v", s)
	}
	if !strings.HasPrefix(s.DownloadDescription, "(3/3) all downloads finished") {
		t.Fatalf("download description = %q", s.DownloadDescription)
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestInvariantsHoldUnderConcurrentCompletions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var mu sync.Mutex
	delays := map[depend.Kind]time.Duration{}
	for _, k := range depend.All {
		delays[k] = time.Duration(rng.Intn(20)) * time.Millisecond
	}
	inst := &fakeInstaller{delay: func(k depend.Kind) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return delays[k]
	}}

	for round := 0; round < 20; round++ {
		p := New(depend.All, &fakeDownloader{}, inst, &recordingSink{})
		p.Run(context.Background())

	watch:
		for {
			select {
			case <-p.Notices():
				checkInvariants(t, p.Snapshot())
			case <-p.Done():
				break watch
			case <-time.After(5 * time.Second):
				t.Fatal("pipeline stalled")
			}
		}

		s := p.Snapshot()
		checkInvariants(t, s)
		if len(s.Installed) != 3 || len(s.Installing) != 0 {
			t.Fatalf("round %d: final state = %+v", round, s)
		}
		if err := p.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDownloadsAreSequentialAndPrecedeInstall(t *testing.T) {
	var mu sync.Mutex
	downloaded := map[depend.Kind]bool{}
	d := &fakeDownloader{onDone: func(k depend.Kind) {
		mu.Lock()
		downloaded[k] = true
		mu.Unlock()
	}}
	var violations []depend.Kind
	inst := &fakeInstaller{delay: func(k depend.Kind) time.Duration {
		mu.Lock()
		if !downloaded[k] {
			violations = append(violations, k)
		}
		mu.Unlock()
		return 0
	}}

	p := New([]depend.Kind{a, b, c}, d, inst, &recordingSink{})
	p.Run(context.Background())
	waitDone(t, p)

	if got := d.downloaded(); !slices.Equal(got, []depend.Kind{a, b, c}) {
		t.Fatalf("download order = %v", got)
	}
	if len(violations) != 0 {
		t.Fatalf("installed before download finished: %v", violations)
	}
}

func TestFailedInstallStillCountsTowardCompletion(t *testing.T) {
	inst := &fakeInstaller{fail: map[depend.Kind]error{b: errors.New("exit status 1603")}}
	sink := &recordingSink{}
	p := New([]depend.Kind{a, b}, &fakeDownloader{}, inst, sink)
	p.Run(context.Background())
	waitDone(t, p)

	if dl, in := sink.counts(); dl != 0 || in != 1 {
		t.Fatalf("sink counts = %d download, %d install", dl, in)
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	var failed []depend.Kind
	for i := 0; i < 2; i++ {
		if r := <-p.Results(); r.Err != nil {
			failed = append(failed, r.Kind)
		}
	}
	if !slices.Equal(failed, []depend.Kind{b}) {
		t.Fatalf("failed results = %v", failed)
	}
}

func TestInstallerPanicIsAnInstallFailure(t *testing.T) {
	sink := &recordingSink{}
	p := New([]depend.Kind{a, b}, &fakeDownloader{}, &fakeInstaller{panics: a}, sink)
	p.Run(context.Background())
	waitDone(t, p)

	if _, inst := sink.counts(); inst != 1 {
		t.Fatalf("install failures reported = %d", inst)
	}
	if s := p.Snapshot(); len(s.Installed) != 2 {
		t.Fatalf("installed = %v", s.Installed)
	}
}

func TestDownloadFailureStopsPipeline(t *testing.T) {
	gateA := make(chan struct{})
	d := &fakeDownloader{fail: map[depend.Kind]error{b: errors.New("connection reset")}}
	inst := &fakeInstaller{gates: map[depend.Kind]chan struct{}{a: gateA}}
	sink := &recordingSink{}
	p := New([]depend.Kind{a, b, c}, d, inst, sink)
	d.before = func(k depend.Kind) {
		if k != b {
			return
		}
		// Fail B only once A's install is under way.
		for !slices.Contains(p.Snapshot().Installing, a) {
			time.Sleep(time.Millisecond)
		}
	}
	p.Run(context.Background())

	deadline := time.After(5 * time.Second)
	for !p.Failed() {
		select {
		case <-p.Notices():
		case <-deadline:
			t.Fatal("failure not observed")
		}
	}

	// The in-flight install of A is allowed to finish.
	close(gateA)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := d.downloaded(); !slices.Equal(got, []depend.Kind{a, b}) {
		t.Fatalf("downloaded = %v, C must not be attempted", got)
	}
	if dl, _ := sink.counts(); dl != 1 {
		t.Fatalf("download failures reported = %d", dl)
	}
	select {
	case <-p.Done():
		t.Fatal("pipeline must not complete after a download failure")
	default:
	}
	if r := <-p.Results(); r.Kind != a || r.Err != nil {
		t.Fatalf("result = %+v", r)
	}
	if s := p.Snapshot(); !s.Failed || len(s.Installing) != 0 {
		t.Fatalf("snapshot = %+v", s)
	}
}

func TestInstallSkippedAfterFailure(t *testing.T) {
	p := New([]depend.Kind{a}, &fakeDownloader{}, &fakeInstaller{}, &recordingSink{})
	p.markFailed()
	p.install(context.Background(), a)

	s := p.Snapshot()
	if len(s.Installing) != 0 || len(s.Installed) != 0 {
		t.Fatalf("install ran after failure: %+v", s)
	}
}

func TestEmptyPipelineCompletesImmediately(t *testing.T) {
	p := New(nil, &fakeDownloader{}, &fakeInstaller{}, &recordingSink{})
	p.Run(context.Background())
	waitDone(t, p)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestNewDropsDuplicates(t *testing.T) {
	p := New([]depend.Kind{a, b, a}, &fakeDownloader{}, &fakeInstaller{}, &recordingSink{})
	if got := p.Snapshot().Needed; !slices.Equal(got, []depend.Kind{a, b}) {
		t.Fatalf("needed = %v", got)
	}
}

func TestProgressResetsPerDownload(t *testing.T) {
	p := New([]depend.Kind{a}, &fakeDownloader{}, &fakeInstaller{}, &recordingSink{})
	p.setProgress(80)
	p.setProgress(0)
	if got := p.Snapshot().Progress; got != 0 {
		t.Fatalf("progress = %d", got)
	}
}

func TestInstallingDescriptionJoinsNames(t *testing.T) {
	got := installingDescription([]depend.Kind{a, b})
	want := "installing runtime: .NET Framework 4.8, WebView2"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
