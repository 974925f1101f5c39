package fusion

import (
	"path"
	"regexp"

	"go.uber.org/zap"
)

// Subtrees of a previous result file that must never be carried over:
// per-object map data and the object id datasets are regenerated from
// scratch on every analysis pass.
var (
	mapDataGroupRe  = regexp.MustCompile(`^objects/[^/]+/map_data$`)
	objectIDsPathRe = regexp.MustCompile(`^objects/[^/]+/ids$`)
)

// Merge copies every dataset of a previous result file into a fresh one,
// except datasets the new file already holds, object id datasets, and
// anything below a map_data group. The new file's datasets always win.
func (f *Fuser) Merge(oldFile, newFile string) error {
	r, err := f.opener.OpenReader(oldFile)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := f.opener.OpenWriter(newFile)
	if err != nil {
		return err
	}
	defer w.Close()

	logger := f.logger.With(
		zap.String("old", oldFile),
		zap.String("new", newFile),
	)
	if err := mergeGroup(r, w, ""); err != nil {
		return err
	}
	logger.Info("merged previous result file")
	return w.Close()
}

func mergeGroup(r Reader, w Writer, group string) error {
	names, err := r.ListDatasets(group)
	if err != nil {
		return err
	}
	for _, name := range names {
		p := path.Join(group, name)
		if objectIDsPathRe.MatchString(p) {
			continue
		}
		if w.Exists(p) {
			continue
		}
		arr, err := r.Read(p)
		if err != nil {
			return err
		}
		if err := w.Preallocate(p, arr.DType, arr.Rows()); err != nil {
			return err
		}
		if err := w.WriteAt(p, 0, arr); err != nil {
			return err
		}
	}

	subs, err := r.ListGroups(group)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		p := path.Join(group, sub)
		if mapDataGroupRe.MatchString(p) {
			continue
		}
		if err := mergeGroup(r, w, p); err != nil {
			return err
		}
	}
	return nil
}
