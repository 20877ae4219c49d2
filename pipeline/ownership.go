package pipeline

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dcshock/imgpipe/resource"
)

// ledger tracks which image handles a run is responsible for releasing and
// which belong to the caller.
type ledger struct {
	guarded  bool
	transfer bool
	log      *zap.Logger

	caller map[*resource.Image]resource.State
	// lent maps views handed to stages back to the caller image they share.
	lent  map[*resource.Image]*resource.Image
	owned []*resource.Image
	seen   map[*resource.Image]struct{}
}

func newLedger(input interface{}, opts *RunOptions, log *zap.Logger) *ledger {
	l := &ledger{
		guarded:  !opts.Unguarded,
		transfer: opts.TransferOwnership,
		log:      log,
		caller:   make(map[*resource.Image]resource.State),
		lent:     make(map[*resource.Image]*resource.Image),
		seen:     make(map[*resource.Image]struct{}),
	}
	if c, ok := input.(resource.Carrier); ok {
		for _, img := range c.Images() {
			l.caller[img] = img.State()
		}
	}
	return l
}

func (l *ledger) isCaller(img *resource.Image) bool {
	_, ok := l.caller[img]
	return ok
}

// origin returns the caller image img is or views, or nil.
func (l *ledger) origin(img *resource.Image) *resource.Image {
	if l.isCaller(img) {
		return img
	}
	return l.lent[img]
}

func (l *ledger) track(img *resource.Image) {
	if _, ok := l.seen[img]; ok {
		return
	}
	l.seen[img] = struct{}{}
	l.owned = append(l.owned, img)
}

// prepare returns the value a stage actually receives.
func (l *ledger) prepare(stage Stage, input interface{}) (interface{}, error) {
	c, ok := input.(resource.Carrier)
	if !ok || !l.guarded {
		return input, nil
	}
	if stage.Policy == Consumes {
		owned, err := c.Map(func(img *resource.Image) (*resource.Image, error) {
			orig := l.origin(img)
			if orig == nil {
				return img, nil
			}
			if l.transfer {
				return orig, nil
			}
			cp, err := img.Clone()
			if err != nil {
				return nil, err
			}
			l.track(cp)
			l.log.Debug("cloned caller image for consuming stage",
				zap.String("stage", stage.Name), zap.String("image_id", orig.ID()), zap.String("clone_id", cp.ID()))
			return cp, nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "clone input")
		}
		return owned, nil
	}
	lent, err := c.Map(func(img *resource.Image) (*resource.Image, error) {
		v, err := img.Borrow()
		if err != nil {
			return nil, err
		}
		if orig := l.origin(img); orig != nil {
			l.lent[v] = orig
		}
		l.track(v)
		return v, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "lend input")
	}
	return lent, nil
}

// produced records the images a stage emitted in new slots.
func (l *ledger) produced(input, output interface{}) {
	out, ok := output.(resource.Carrier)
	if !ok {
		return
	}
	var imgs []*resource.Image
	if in, ok := input.(resource.Carrier); ok {
		imgs = out.Produced(in)
	} else {
		imgs = out.Images()
	}
	for _, img := range imgs {
		if l.guarded && !l.transfer && l.isCaller(img) {
			l.log.Warn("stage output aliases a caller image; leaving it to the caller", zap.String("image_id", img.ID()))
			continue
		}
		l.track(img)
	}
}

// releaseAll releases every image the run is responsible for that is still Live.
func (l *ledger) releaseAll() error {
	var errs error
	for _, img := range l.owned {
		if img.State() == resource.Disposed {
			continue
		}
		if err := img.Release(); err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		l.log.Debug("released image", zap.String("image_id", img.ID()), zap.Bool("borrowed", img.Borrowed()))
	}
	l.owned = nil
	return errs
}

// verify checks that caller images leave the run in the state they entered it.
func (l *ledger) verify() error {
	if !l.guarded || l.transfer {
		return nil
	}
	var ids []string
	for img, was := range l.caller {
		if img.State() != was {
			ids = append(ids, img.ID())
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	return errors.Wrapf(ErrOwnershipViolation, "images %s", strings.Join(ids, ", "))
}
