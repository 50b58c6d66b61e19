package batch

import (
	"archive/zip"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"docwebapi/archive"
	"docwebapi/convert"
	"docwebapi/workspace"
)

const ArchiveName = "batch_results.zip"

// Aggregator merges per-job archives into one batch archive.
type Aggregator struct {
	// ScratchDir is where job archives are unpacked; empty means os.TempDir.
	ScratchDir string
}

func Aggregate(outcomes []Outcome[string, *convert.Result], ws workspace.Workspace) (string, error) {
	return (&Aggregator{}).Aggregate(outcomes, ws)
}

// Aggregate writes {ws.Root}/batch_results.zip containing one top-level
// directory per successful job. Failed jobs and jobs whose archive is gone
// are skipped. On error the partially written archive stays on disk.
func (a *Aggregator) Aggregate(outcomes []Outcome[string, *convert.Result], ws workspace.Workspace) (zipPath string, err error) {
	zipPath = filepath.Join(ws.Root, ArchiveName)

	out, err := os.Create(zipPath)
	if err != nil {
		return zipPath, fmt.Errorf("%w: %v", convert.ErrPackaging, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("%w: %v", convert.ErrPackaging, cerr)
		}
	}()

	zw := zip.NewWriter(out)
	used := map[string]bool{}

	for _, res := range successful(outcomes) {
		if _, err := os.Stat(res.ArchivePath); err != nil {
			slog.Warn("job archive missing, skipping", "task_id", res.TaskID, "path", res.ArchivePath)
			continue
		}

		dir := uniqueDir(used, res)
		if err := a.addJob(zw, res.ArchivePath, dir); err != nil {
			return zipPath, fmt.Errorf("%w: %s: %v", convert.ErrPackaging, res.Source, err)
		}
	}

	if err := zw.Close(); err != nil {
		return zipPath, fmt.Errorf("%w: %v", convert.ErrPackaging, err)
	}
	return zipPath, nil
}

// successful returns the results of the jobs that succeeded, sorted by
// source path so that name disambiguation does not depend on completion order.
func successful(outcomes []Outcome[string, *convert.Result]) []*convert.Result {
	var results []*convert.Result
	for _, o := range outcomes {
		if o.OK() && o.Value != nil {
			results = append(results, o.Value)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Source != results[j].Source {
			return results[i].Source < results[j].Source
		}
		return results[i].TaskID < results[j].TaskID
	})
	return results
}

// uniqueDir names the job's directory after its archive. A name that is
// already taken gets the job's task ID appended, then a counter.
func uniqueDir(used map[string]bool, res *convert.Result) string {
	name := strings.TrimSuffix(filepath.Base(res.ArchivePath), filepath.Ext(res.ArchivePath))
	if used[name] {
		candidate := name + "_" + res.TaskID
		for i := 2; used[candidate]; i++ {
			candidate = fmt.Sprintf("%s_%s_%d", name, res.TaskID, i)
		}
		slog.Info("batch archive name collision", "name", name, "renamed", candidate)
		name = candidate
	}
	used[name] = true
	return name
}

// addJob unpacks one job archive into a scratch directory and copies its
// files under dir/. The scratch directory is removed on every return path.
func (a *Aggregator) addJob(zw *zip.Writer, jobZip, dir string) error {
	scratch, err := os.MkdirTemp(a.ScratchDir, "batch_extract_*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	if err := archive.Extract(jobZip, scratch); err != nil {
		return err
	}

	return filepath.WalkDir(scratch, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(scratch, p)
		if err != nil {
			return err
		}
		return archive.AddFile(zw, p, path.Join(dir, filepath.ToSlash(rel)))
	})
}
