package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dcshock/imgpipe/resource"
)

// bag is a minimal resource.Carrier: named image slots plus a derived value.
type bag struct {
	names []string
	imgs  map[string]*resource.Image
	value int
}

func newBag(value int) *bag {
	return &bag{imgs: make(map[string]*resource.Image), value: value}
}

func (b *bag) with(name string, img *resource.Image) *bag {
	nb := &bag{names: append([]string(nil), b.names...), imgs: make(map[string]*resource.Image, len(b.imgs)+1), value: b.value}
	for k, v := range b.imgs {
		nb.imgs[k] = v
	}
	if _, ok := b.imgs[name]; !ok {
		nb.names = append(nb.names, name)
	}
	nb.imgs[name] = img
	return nb
}

func (b *bag) Images() []*resource.Image {
	out := make([]*resource.Image, 0, len(b.names))
	for _, n := range b.names {
		out = append(out, b.imgs[n])
	}
	return out
}

func (b *bag) Map(fn func(*resource.Image) (*resource.Image, error)) (resource.Carrier, error) {
	nb := newBag(b.value)
	for _, n := range b.names {
		img, err := fn(b.imgs[n])
		if err != nil {
			return nil, err
		}
		nb = nb.with(n, img)
	}
	return nb, nil
}

func (b *bag) Produced(input resource.Carrier) []*resource.Image {
	in, ok := input.(*bag)
	if !ok {
		return b.Images()
	}
	var out []*resource.Image
	for _, n := range b.names {
		if prev, had := in.imgs[n]; !had || prev != b.imgs[n] {
			out = append(out, b.imgs[n])
		}
	}
	return out
}

func (b *bag) Strip() resource.Carrier { return newBag(b.value) }

func testImage(t *testing.T, size int) *resource.Image {
	t.Helper()
	img, err := resource.New(size, size, make([]byte, size*size*resource.BytesPerPixel))
	if err != nil {
		t.Fatal(err)
	}
	return img
}

// aliasStage emits the "src" image again under "out", the way a resize that
// skips work for equal dimensions would.
func aliasStage() Stage {
	return Borrow("alias", func(ctx context.Context, in interface{}) (interface{}, error) {
		b := in.(*bag)
		return b.with("out", b.imgs["src"]), nil
	})
}

func copyStage() Stage {
	return Borrow("copy", func(ctx context.Context, in interface{}) (interface{}, error) {
		b := in.(*bag)
		cp, err := b.imgs["src"].Clone()
		if err != nil {
			return nil, err
		}
		return b.with("out", cp), nil
	})
}

func TestOwnership_BorrowsStageReceivesViews(t *testing.T) {
	src := testImage(t, 2)
	var sawBorrowed bool
	p := &Pipeline{Name: "views", Stages: []Stage{
		Borrow("inspect", func(ctx context.Context, in interface{}) (interface{}, error) {
			img := in.(*bag).imgs["src"]
			sawBorrowed = img.Borrowed() && img.ID() == src.ID()
			return in, nil
		}),
	}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), nil); err != nil {
		t.Fatal(err)
	}
	if !sawBorrowed {
		t.Error("stage should receive a borrowed view of the caller image")
	}
	if src.State() != resource.Live {
		t.Errorf("caller image: got %v, want live", src.State())
	}
}

func TestOwnership_AliasGuarded(t *testing.T) {
	src := testImage(t, 2)
	p := &Pipeline{Name: "alias", Stages: []Stage{aliasStage(), Identity()}}
	out, err := p.RunWithInput(context.Background(), newBag(5).with("src", src), nil)
	if err != nil {
		t.Fatal(err)
	}
	if h, err := src.Height(); err != nil || h != 2 {
		t.Fatalf("caller image after run: h=%d err=%v", h, err)
	}
	res, ok := out.(*bag)
	if !ok {
		t.Fatalf("result: got %T", out)
	}
	if len(res.Images()) != 0 || res.value != 5 {
		t.Errorf("result should be stripped with value kept: %+v", res)
	}
}

func TestOwnership_AliasUnguardedDisposesCallerImage(t *testing.T) {
	src := testImage(t, 2)
	p := &Pipeline{Name: "alias", Stages: []Stage{aliasStage()}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), &RunOptions{Unguarded: true}); err != nil {
		t.Fatal(err)
	}
	_, err := src.Height()
	if !errors.Is(err, resource.ErrUseAfterDispose) {
		t.Fatalf("expected use-after-dispose on caller image, got %v", err)
	}
}

func TestOwnership_CopyUnguardedLeavesCallerImage(t *testing.T) {
	src := testImage(t, 3)
	var produced *resource.Image
	p := &Pipeline{Name: "copy", Stages: []Stage{
		copyStage(),
		Tap(func(ctx context.Context, v interface{}) { produced = v.(*bag).imgs["out"] }),
	}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), &RunOptions{Unguarded: true}); err != nil {
		t.Fatal(err)
	}
	if src.State() != resource.Live {
		t.Error("caller image should stay live when the stage copies")
	}
	if produced == nil || produced.State() != resource.Disposed {
		t.Error("produced image should be released at the end of the run")
	}
}

func TestOwnership_ProducedImagesReleased(t *testing.T) {
	src := testImage(t, 3)
	var produced *resource.Image
	p := &Pipeline{Name: "copy", Stages: []Stage{
		copyStage(),
		Tap(func(ctx context.Context, v interface{}) { produced = v.(*bag).imgs["out"] }),
	}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), nil); err != nil {
		t.Fatal(err)
	}
	if produced == nil || produced.State() != resource.Disposed {
		t.Fatal("view of produced image should be released")
	}
	if src.State() != resource.Live {
		t.Error("caller image should stay live")
	}
}

func TestOwnership_BorrowsStageCannotDispose(t *testing.T) {
	src := testImage(t, 2)
	p := &Pipeline{Name: "rogue", Stages: []Stage{
		Borrow("dispose-input", func(ctx context.Context, in interface{}) (interface{}, error) {
			if err := in.(*bag).imgs["src"].Dispose(); err != nil {
				return nil, err
			}
			return in, nil
		}),
	}}
	_, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), nil)
	if !errors.Is(err, resource.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if src.State() != resource.Live {
		t.Error("caller image should stay live")
	}
}

func TestOwnership_ViolationDetected(t *testing.T) {
	src := testImage(t, 2)
	p := &Pipeline{Name: "capture", Stages: []Stage{
		Borrow("closure-dispose", func(ctx context.Context, in interface{}) (interface{}, error) {
			_ = src.Dispose()
			return in, nil
		}),
	}}
	_, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), nil)
	if !errors.Is(err, ErrOwnershipViolation) {
		t.Fatalf("expected ErrOwnershipViolation, got %v", err)
	}
	if !strings.Contains(err.Error(), src.ID()) {
		t.Errorf("error should name the image: %v", err)
	}
}

func TestOwnership_ConsumesReceivesClone(t *testing.T) {
	src := testImage(t, 2)
	var seen *resource.Image
	p := &Pipeline{Name: "consume", Stages: []Stage{
		Consume("eat", func(ctx context.Context, in interface{}) (interface{}, error) {
			seen = in.(*bag).imgs["src"]
			if err := seen.Release(); err != nil {
				return nil, err
			}
			return newBag(1), nil
		}),
	}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), nil); err != nil {
		t.Fatal(err)
	}
	if seen == nil || seen.ID() == src.ID() || seen.Borrowed() {
		t.Fatalf("consuming stage should get an owned clone, got %+v", seen)
	}
	if src.State() != resource.Live {
		t.Error("caller image should stay live")
	}
}

func TestOwnership_TransferOwnership(t *testing.T) {
	src := testImage(t, 2)
	p := &Pipeline{Name: "transfer", Stages: []Stage{
		Consume("eat", func(ctx context.Context, in interface{}) (interface{}, error) {
			return newBag(1), in.(*bag).imgs["src"].Release()
		}),
	}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), &RunOptions{TransferOwnership: true}); err != nil {
		t.Fatal(err)
	}
	if src.State() != resource.Disposed {
		t.Error("transferred image should be released by the consuming stage")
	}
}

func TestOwnership_ConsumesReleasesProducedImage(t *testing.T) {
	src := testImage(t, 3)
	p := &Pipeline{Name: "produce-consume", Stages: []Stage{
		copyStage(),
		Consume("drop-out", func(ctx context.Context, in interface{}) (interface{}, error) {
			b := in.(*bag)
			if err := b.imgs["out"].Release(); err != nil {
				return nil, err
			}
			return newBag(b.value), nil
		}),
	}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), nil); err != nil {
		t.Fatalf("releasing an already released image must not fail the run: %v", err)
	}
	if src.State() != resource.Live {
		t.Error("caller image should stay live")
	}
}

func TestOwnership_DisposedInputFailsAtLend(t *testing.T) {
	src := testImage(t, 2)
	if err := src.Dispose(); err != nil {
		t.Fatal(err)
	}
	p := &Pipeline{Name: "dead", Stages: []Stage{Identity()}}
	_, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), nil)
	if !errors.Is(err, resource.ErrUseAfterDispose) {
		t.Fatalf("expected use-after-dispose, got %v", err)
	}
	if !strings.Contains(err.Error(), "stage 0 (identity): lend input") {
		t.Errorf("error should name the stage boundary: %v", err)
	}
}

// Every chain of Borrows stages leaves caller images exactly as it found them.
func TestOwnership_BorrowChainsPreserveCallerState(t *testing.T) {
	chains := map[string][]Stage{
		"empty":       nil,
		"identity":    {Identity(), Identity()},
		"alias":       {aliasStage()},
		"alias-twice": {aliasStage(), aliasStage(), Identity()},
		"copy":        {copyStage(), Identity()},
	}
	for name, stages := range chains {
		t.Run(name, func(t *testing.T) {
			a, b := testImage(t, 2), testImage(t, 2)
			in := newBag(0).with("src", a).with("other", b)
			p := &Pipeline{Name: name, Stages: stages}
			if _, err := p.RunWithInput(context.Background(), in, nil); err != nil {
				t.Fatal(err)
			}
			if a.State() != resource.Live || b.State() != resource.Live {
				t.Errorf("states after run: %v %v", a.State(), b.State())
			}
		})
	}
}

func TestOwnership_WarnsWhenOutputAliasesCallerImage(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := testImage(t, 2)
	p := &Pipeline{Name: "leak", Stages: []Stage{
		Borrow("reemit", func(ctx context.Context, in interface{}) (interface{}, error) {
			return in.(*bag).with("out", src), nil
		}),
	}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), &RunOptions{Logger: zap.New(core)}); err != nil {
		t.Fatal(err)
	}
	if src.State() != resource.Live {
		t.Fatal("guarded run must not release a caller image")
	}
	entries := logs.FilterField(zap.String("image_id", src.ID())).All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warning naming the image, got %v", entries)
	}
	if got := entries[0].ContextMap()["pipeline"]; got != "leak" {
		t.Errorf("warning should carry the pipeline name, got %v", got)
	}
}

func disposeSrc() Stage {
	return Consume("dispose-src", func(ctx context.Context, in interface{}) (interface{}, error) {
		b := in.(*bag)
		if err := b.imgs["src"].Dispose(); err != nil {
			return nil, err
		}
		return newBag(b.value), nil
	})
}

func TestOwnership_ConsumesAfterBorrowsGetsClone(t *testing.T) {
	src := testImage(t, 2)
	p := &Pipeline{Name: "borrow-then-consume", Stages: []Stage{Identity(), Identity(), disposeSrc()}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), nil); err != nil {
		t.Fatalf("consuming stage should own what it disposes: %v", err)
	}
	if src.State() != resource.Live {
		t.Errorf("caller image: got %v, want live", src.State())
	}
}

func TestOwnership_TransferAfterBorrows(t *testing.T) {
	src := testImage(t, 2)
	var seen *resource.Image
	p := &Pipeline{Name: "transfer-late", Stages: []Stage{
		Identity(),
		Consume("eat", func(ctx context.Context, in interface{}) (interface{}, error) {
			seen = in.(*bag).imgs["src"]
			return newBag(1), seen.Release()
		}),
	}}
	if _, err := p.RunWithInput(context.Background(), newBag(0).with("src", src), &RunOptions{TransferOwnership: true}); err != nil {
		t.Fatal(err)
	}
	if seen != src {
		t.Errorf("consuming stage should receive the caller handle itself, got %+v", seen)
	}
	if src.State() != resource.Disposed {
		t.Error("transferred image should be released by the consuming stage")
	}
}
