package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"attacknav/internal/codec"
	"attacknav/internal/compose"
	"attacknav/internal/domain"
	"attacknav/internal/layer"
	"attacknav/internal/loader"
)

// pairs collects repeated name=value flags
type pairs map[string]string

func (p pairs) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k+"="+p[k])
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (p pairs) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" || value == "" {
		return fmt.Errorf("expected name=value, got %q", v)
	}
	p[strings.ToLower(name)] = value
	return nil
}

func runCompose(args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("compose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	expression := fs.String("expr", "", "score expression over the bound variables")
	name := fs.String("name", "", "name of the new layer")
	mode := fs.String("mode", "", "combined or static (default: by expression)")
	bundle := fs.String("bundle", "", "bundle file of the layers' domain (required)")
	out := fs.String("o", "", "output file; the extension picks json or yaml (default: JSON on stdout)")
	binds := pairs{}
	fs.Var(binds, "bind", "variable=layer-file, repeatable")
	inherit := pairs{}
	fs.Var(inherit, "inherit", "aspect=variable, repeatable; aspects: comments, links, metadata, colors, enabled, filters, legend, gradient")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: layerctl compose -bundle bundle.json -expr 'a+b' -bind a=x.json -bind b=y.json [-o out.json]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bundle == "" {
		fs.Usage()
		return fmt.Errorf("compose needs -bundle")
	}

	docs := make(map[string]*layer.Document, len(binds))
	for variable, path := range binds {
		doc, err := readLayer(path)
		if err != nil {
			return fmt.Errorf("%s: %w", variable, err)
		}
		docs[variable] = doc
	}

	meta := domain.Meta{Identifier: "enterprise-attack"}
	if first := firstDocument(docs); first != nil {
		meta = domain.Meta{Identifier: first.Domain, Version: first.Versions.Attack}
	}
	d, _, err := loader.NewParser(loader.Options{}, logger).ParseFiles(meta, *bundle)
	if err != nil {
		return err
	}

	bindings := make(map[string]*layer.Layer, len(docs))
	for variable, doc := range docs {
		l, err := layer.FromDocument(doc, d)
		if err != nil {
			return fmt.Errorf("%s: %w", variable, err)
		}
		bindings[variable] = l
	}

	var inh compose.Inherit
	for aspect, variable := range inherit {
		l, ok := bindings[strings.ToLower(variable)]
		if !ok {
			return fmt.Errorf("inherit %s: variable %q is not bound", aspect, variable)
		}
		if err := setInherit(&inh, aspect, l); err != nil {
			return err
		}
	}

	result, err := compose.NewEngine(logger).Compose(d, compose.Request{
		DomainVersionID: d.ID,
		Expression:      *expression,
		Bindings:        bindings,
		Inherit:         inh,
		Name:            *name,
		Mode:            compose.Mode(*mode),
	})
	if err != nil {
		return err
	}
	return writeLayer(result, *out, stdout)
}

func setInherit(inh *compose.Inherit, aspect string, l *layer.Layer) error {
	switch strings.ToLower(aspect) {
	case "comments":
		inh.Comments = l
	case "links":
		inh.Links = l
	case "metadata":
		inh.Metadata = l
	case "colors":
		inh.Colors = l
	case "enabled":
		inh.Enabled = l
	case "filters":
		inh.Filters = l
	case "legend":
		inh.Legend = l
	case "gradient":
		inh.Gradient = l
	default:
		return fmt.Errorf("unknown inherit aspect %q", aspect)
	}
	return nil
}

// firstDocument returns the document of the alphabetically first variable
func firstDocument(docs map[string]*layer.Document) *layer.Document {
	var first string
	for variable := range docs {
		if first == "" || variable < first {
			first = variable
		}
	}
	return docs[first]
}

func readLayer(path string) (*layer.Document, error) {
	c, err := codec.ForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Parse(f)
}

func writeLayer(l *layer.Layer, path string, stdout io.Writer) error {
	if path == "" {
		return codec.NewJSONCodec().Export(l.Document(), stdout)
	}
	c, err := codec.ForPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Export(l.Document(), f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
