// Package verify checks that a deployment has everything the service needs
// and renders the result as a table.
package verify

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agrivision-api/internal/catalog"
	"github.com/Brownie44l1/agrivision-api/internal/domain"
	"github.com/Brownie44l1/agrivision-api/internal/model"
)

type Check struct {
	Name   string
	OK     bool
	Detail string
}

// ModelInfo is what a successful model load reveals.
type ModelInfo struct {
	Descriptor domain.Descriptor
	Input      model.TensorInfo
	Output     model.TensorInfo
}

// Loader loads a model far enough to describe it.
type Loader func(opts model.Options) (ModelInfo, error)

type Options struct {
	Model       model.Options
	StaticDir   string
	CatalogPath string
	Load        Loader
}

type Report struct {
	Checks []Check
	Model  *ModelInfo
}

func (r Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// ONNXLoader opens the model with a single session and closes it again.
func ONNXLoader(log *zap.Logger) Loader {
	return func(opts model.Options) (ModelInfo, error) {
		opts.PoolSize = 1
		srv, err := model.NewServer(opts, log)
		if err != nil {
			return ModelInfo{}, err
		}
		defer srv.Close()

		in, out := srv.IO()
		return ModelInfo{Descriptor: srv.Descriptor(), Input: in, Output: out}, nil
	}
}

func Run(opts Options) Report {
	var r Report

	r.Checks = append(r.Checks, fileCheck("Model file", opts.Model.ModelPath))
	if opts.Model.MetadataPath != "" {
		r.Checks = append(r.Checks, fileCheck("Model metadata", opts.Model.MetadataPath))
	}
	r.Checks = append(r.Checks, fileCheck("Web interface", filepath.Join(opts.StaticDir, "index.html")))

	c, err := catalog.Load(opts.CatalogPath)
	source := opts.CatalogPath
	if source == "" {
		source = "built-in"
	}
	if err != nil {
		r.Checks = append(r.Checks, Check{Name: "Disease catalog", Detail: err.Error()})
	} else {
		r.Checks = append(r.Checks, Check{Name: "Disease catalog", OK: true, Detail: fmt.Sprintf("%s, %d classes", source, c.Size())})
	}

	if opts.Load == nil {
		return r
	}

	info, err := opts.Load(opts.Model)
	if err != nil {
		r.Checks = append(r.Checks, Check{Name: "Model load", Detail: err.Error()})
		return r
	}
	r.Model = &info
	r.Checks = append(r.Checks, Check{
		Name:   "Model load",
		OK:     true,
		Detail: fmt.Sprintf("input %v %s, output %v %s", info.Input.Shape, info.Input.DataType, info.Output.Shape, info.Output.DataType),
	})

	if c != nil {
		match := Check{Name: "Catalog matches model", OK: info.Descriptor.NumClasses == c.Size()}
		match.Detail = fmt.Sprintf("model %d classes, catalog %d", info.Descriptor.NumClasses, c.Size())
		r.Checks = append(r.Checks, match)
	}

	return r
}

func fileCheck(name, path string) Check {
	st, err := os.Stat(path)
	switch {
	case err != nil:
		return Check{Name: name, Detail: "missing: " + path}
	case st.IsDir():
		return Check{Name: name, Detail: "is a directory: " + path}
	}
	return Check{Name: name, OK: true, Detail: path}
}

// Render writes the report as a table followed by a one-line summary.
func Render(w io.Writer, r Report) error {
	table := tablewriter.NewTable(w)
	table.Header("Check", "Result", "Detail")
	for _, c := range r.Checks {
		result := "PASS"
		if !c.OK {
			result = "FAIL"
		}
		if err := table.Append(c.Name, result, c.Detail); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if r.Model != nil {
		d := r.Model.Descriptor
		fmt.Fprintf(w, "\nModel input: %s %v (%dx%dx%d), output: %s %v (%d classes)\n",
			r.Model.Input.Name, r.Model.Input.Shape, d.InputHeight, d.InputWidth, d.InputChannels,
			r.Model.Output.Name, r.Model.Output.Shape, d.NumClasses)
	}

	summary := "All checks passed. Ready to serve predictions."
	if !r.Passed() {
		var failed []string
		for _, c := range r.Checks {
			if !c.OK {
				failed = append(failed, c.Name)
			}
		}
		summary = "Some checks failed: " + strings.Join(failed, ", ")
	}
	_, err := fmt.Fprintln(w, "\n"+summary)
	return err
}
