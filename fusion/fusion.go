package fusion

import (
	"context"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/plateflow/plateflow/internal/metrics"
	"github.com/plateflow/plateflow/types"
)

// Store group and dataset names shared by every fragment file.
const (
	metadataGroup     = "metadata"
	objectsGroup      = "objects"
	featuresGroup     = "features"
	segmentationGroup = "segmentation"
	objectIDsDataset  = "object_ids"
)

// Fuser copies the datasets of many fragment files into one output file.
type Fuser struct {
	opener    Opener
	logger    *zap.Logger
	collector *metrics.Collector
}

// NewFuser creates a fuser on top of a store. A nil logger disables log
// output; a nil collector disables metrics.
func NewFuser(opener Opener, logger *zap.Logger, collector *metrics.Collector) *Fuser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fuser{
		opener:    opener,
		logger:    logger.With(zap.String("component", "data_fuser")),
		collector: collector,
	}
}

// layout is the dataset structure discovered from the first fragment. Every
// fragment of a step shares it.
type layout struct {
	// metadata holds the dataset names under the metadata group.
	metadata []string
	// categories maps each object category to its dataset paths relative
	// to the category group, e.g. "features/area".
	categories map[string][]string
	// order lists the categories sorted for deterministic traversal.
	order []string
}

// Fuse combines the fragment files, in the given order, into the output
// file. Metadata datasets gain one row per fragment at the fragment's
// ordinal position; object datasets are concatenated, so rows of fragment i
// precede rows of fragment i+1. When deleteFragments is set, the fragments
// are removed after a successful pass.
//
// On error the partially written output must be discarded by the caller.
func (f *Fuser) Fuse(ctx context.Context, fragments []string, output string, deleteFragments bool) error {
	if len(fragments) == 0 {
		return types.NewError(types.ErrDataIncomplete, "no fragment files to fuse")
	}
	started := time.Now()
	logger := f.logger.With(
		zap.Int("fragments", len(fragments)),
		zap.String("output", output),
	)
	logger.Info("starting dataset fusion")

	lay, err := f.discover(fragments[0])
	if err != nil {
		return err
	}

	rows, totals, err := f.size(fragments, lay)
	if err != nil {
		return err
	}

	w, err := f.opener.OpenWriter(output)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := f.preallocate(w, fragments[0], lay, len(fragments), totals); err != nil {
		return err
	}
	if err := f.copyAll(ctx, w, fragments, lay, rows); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	if deleteFragments {
		for _, name := range fragments {
			if err := f.opener.Remove(name); err != nil {
				return err
			}
		}
		logger.Debug("removed fragment files")
	}

	if f.collector != nil {
		f.collector.FusionFinished(time.Since(started).Seconds())
	}
	logger.Info("dataset fusion finished", zap.Duration("elapsed", time.Since(started)))
	return nil
}

// discover reads the dataset layout off the first fragment. Segmentation
// groups may nest one further level of subgroups.
func (f *Fuser) discover(fragment string) (*layout, error) {
	r, err := f.opener.OpenReader(fragment)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	lay := &layout{categories: make(map[string][]string)}

	if r.Exists(metadataGroup) {
		lay.metadata, err = r.ListDatasets(metadataGroup)
		if err != nil {
			return nil, err
		}
	}

	if !r.Exists(objectsGroup) {
		return lay, nil
	}
	categories, err := r.ListGroups(objectsGroup)
	if err != nil {
		return nil, err
	}
	for _, category := range categories {
		root := path.Join(objectsGroup, category)
		var paths []string

		if r.Exists(path.Join(root, featuresGroup)) {
			names, err := r.ListDatasets(path.Join(root, featuresGroup))
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				paths = append(paths, path.Join(featuresGroup, name))
			}
		}

		if r.Exists(path.Join(root, segmentationGroup)) {
			segRoot := path.Join(root, segmentationGroup)
			names, err := r.ListDatasets(segRoot)
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				paths = append(paths, path.Join(segmentationGroup, name))
			}
			subs, err := r.ListGroups(segRoot)
			if err != nil {
				return nil, err
			}
			for _, sub := range subs {
				names, err := r.ListDatasets(path.Join(segRoot, sub))
				if err != nil {
					return nil, err
				}
				for _, name := range names {
					paths = append(paths, path.Join(segmentationGroup, sub, name))
				}
			}
		}

		lay.categories[category] = paths
		lay.order = append(lay.order, category)
	}
	sort.Strings(lay.order)
	return lay, nil
}

// size determines, per fragment and category, how many object rows the
// fragment contributes, and sums them into per-category totals.
func (f *Fuser) size(fragments []string, lay *layout) ([]map[string]int, map[string]int, error) {
	rows := make([]map[string]int, len(fragments))
	totals := make(map[string]int, len(lay.order))
	for i, name := range fragments {
		r, err := f.opener.OpenReader(name)
		if err != nil {
			return nil, nil, err
		}
		rows[i] = make(map[string]int, len(lay.order))
		for _, category := range lay.order {
			n, err := fragmentRows(r, name, category)
			if err != nil {
				r.Close()
				return nil, nil, err
			}
			rows[i][category] = n
			totals[category] += n
		}
		r.Close()
	}
	return rows, totals, nil
}

// fragmentRows counts the object rows of one category in one fragment: the
// extent of the first feature dataset, or of the segmented object ids when
// the category carries no features.
func fragmentRows(r Reader, fragment, category string) (int, error) {
	root := path.Join(objectsGroup, category)

	if r.Exists(path.Join(root, featuresGroup)) {
		names, err := r.ListDatasets(path.Join(root, featuresGroup))
		if err != nil {
			return 0, err
		}
		if len(names) > 0 {
			dims, err := r.Dimensions(path.Join(root, featuresGroup, names[0]))
			if err != nil {
				return 0, err
			}
			return dims[0], nil
		}
	}

	idsPath := path.Join(root, segmentationGroup, objectIDsDataset)
	if r.Exists(idsPath) {
		dims, err := r.Dimensions(idsPath)
		if err != nil {
			return 0, err
		}
		return dims[0], nil
	}

	return 0, types.NewErrorf(types.ErrDataIncomplete,
		"cannot determine number of rows for category %q in fragment %q: "+
			"no feature datasets and no segmented object ids", category, fragment)
}

// preallocate creates every output dataset at its final extent, with element
// types taken from the first fragment.
func (f *Fuser) preallocate(w Writer, fragment string, lay *layout, fragmentCount int, totals map[string]int) error {
	r, err := f.opener.OpenReader(fragment)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, name := range lay.metadata {
		p := path.Join(metadataGroup, name)
		dtype, err := r.DType(p)
		if err != nil {
			return err
		}
		if err := w.Preallocate(p, dtype, fragmentCount); err != nil {
			return err
		}
	}
	for _, category := range lay.order {
		for _, rel := range lay.categories[category] {
			p := path.Join(objectsGroup, category, rel)
			dtype, err := r.DType(p)
			if err != nil {
				return err
			}
			if err := w.Preallocate(p, dtype, totals[category]); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyAll walks the fragments in order and copies their rows into the
// preallocated output datasets, advancing one cursor per category.
func (f *Fuser) copyAll(ctx context.Context, w Writer, fragments []string, lay *layout, rows []map[string]int) error {
	cursor := make(map[string]int, len(lay.order))
	for i, name := range fragments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.copyFragment(w, name, i, lay, rows[i], cursor); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fuser) copyFragment(w Writer, fragment string, ordinal int, lay *layout, rows map[string]int, cursor map[string]int) error {
	r, err := f.opener.OpenReader(fragment)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, name := range lay.metadata {
		p := path.Join(metadataGroup, name)
		arr, err := readFragmentDataset(r, fragment, p)
		if err != nil {
			return err
		}
		if len(arr.Dims) != 1 || arr.Rows() != 1 {
			return types.NewErrorf(types.ErrShapeError,
				"metadata dataset %q in fragment %q must hold exactly one row, got shape %v",
				p, fragment, arr.Dims)
		}
		if err := w.WriteAt(p, ordinal, arr); err != nil {
			return err
		}
	}

	for _, category := range lay.order {
		want := rows[category]
		for _, rel := range lay.categories[category] {
			p := path.Join(objectsGroup, category, rel)
			arr, err := readFragmentDataset(r, fragment, p)
			if err != nil {
				return err
			}
			if len(arr.Dims) != 1 {
				return types.NewErrorf(types.ErrShapeError,
					"dataset %q in fragment %q is not one-dimensional: shape %v",
					p, fragment, arr.Dims)
			}
			if arr.Rows() != want {
				return types.NewErrorf(types.ErrShapeError,
					"dataset %q in fragment %q holds %d rows, expected %d",
					p, fragment, arr.Rows(), want)
			}
			if err := w.WriteAt(p, cursor[category], arr); err != nil {
				return err
			}
		}
		cursor[category] += want
		if f.collector != nil {
			f.collector.RowsFused(category, want)
		}
	}
	return nil
}

func readFragmentDataset(r Reader, fragment, p string) (Array, error) {
	if !r.Exists(p) {
		return Array{}, types.NewErrorf(types.ErrDataIncomplete,
			"fragment %q lacks dataset %q", fragment, p)
	}
	return r.Read(p)
}
