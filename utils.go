package starcoal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/species"
)

// ReadLine is like the Python readline() and readlines()
func ReadLine(path string) (ln []string, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	ln = strings.Split(string(b), "\n")
	return
}

// ReadTreeFile will read one newick gene tree per non-blank line. Trees are
// named after the file and their line number
func ReadTreeFile(path string) ([]*genetree.Tree, error) {
	lines, err := ReadLine(path)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var trees []*genetree.Tree
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		tr, err := genetree.ReadTree(fmt.Sprintf("%s:%d", base, i+1), l)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		trees = append(trees, tr)
	}
	return trees, nil
}

// BindAll will bind every gene tree to the registry
func BindAll(reg *species.Registry, trees []*genetree.Tree, opts ...genetree.BindingOption) ([]*genetree.Binding, error) {
	bindings := make([]*genetree.Binding, 0, len(trees))
	for _, tr := range trees {
		b, err := genetree.NewBinding(reg, tr, opts...)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}
