// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package main

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"slices"
	"strings"
	"text/template"

	flag "github.com/spf13/pflag"
)

const importBase = "github.com/coredhcp/dutinfo/plugins/"

//go:embed dutinfo.go.template
var defaultTemplate string

var (
	flagTemplate = flag.StringP("template", "t", "", "Template file name. Default: the builtin template")
	flagOutfile  = flag.StringP("outfile", "o", "", "Output file path")
	flagFromFile = flag.StringP("from", "f", "", "Optional file name to get the plugin list from, one import path per line")
)

var funcMap = template.FuncMap{
	"importname": importName,
}

func importName(importPath string) (string, error) {
	parts := strings.Split(strings.Trim(importPath, "/"), "/")
	last := parts[len(parts)-1]
	if last == "" {
		return "", fmt.Errorf("no components found in import path '%s'", importPath)
	}
	return "pl_" + strings.NewReplacer("-", "_", ".", "_").Replace(last), nil
}

// pluginPaths expands bare plugin names to builtin import paths and reads the
// additional paths of from, one per line. The result is sorted and free of
// duplicates.
func pluginPaths(names []string, from io.Reader) ([]string, error) {
	plugins := make(map[string]bool)
	for _, pl := range names {
		pl := strings.TrimSpace(pl)
		if pl == "" {
			continue
		}
		if !strings.ContainsRune(pl, '/') {
			// A bare name was specified, not a full import path. Assume this
			// is one of the builtin sources. If needed, use the -from option
			// which always requires (and uses) exact paths
			pl = importBase + pl
		}
		plugins[pl] = true
	}
	if from != nil {
		sc := bufio.NewScanner(from)
		for sc.Scan() {
			pl := strings.TrimSpace(sc.Text())
			if pl == "" || strings.HasPrefix(pl, "#") {
				continue
			}
			plugins[pl] = true
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	pluginList := make([]string, 0, len(plugins))
	for pl := range plugins {
		pluginList = append(pluginList, pl)
	}
	slices.Sort(pluginList)
	return pluginList, nil
}

func generate(w io.Writer, tpl string, pluginList []string) error {
	t, err := template.New("dutinfo").Funcs(funcMap).Parse(tpl)
	if err != nil {
		return fmt.Errorf("template parsing failed: %w", err)
	}
	// WARNING: no escaping of the provided strings is done
	if err := t.Execute(w, pluginList); err != nil {
		return fmt.Errorf("template execution failed: %w", err)
	}
	return nil
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"%s [-template tpl] [-outfile out] [-from pluginlist] [plugin [plugin...]]\n",
		os.Args[0],
	)
	flag.PrintDefaults()
	fmt.Fprintln(flag.CommandLine.Output(), `  plugin
	Source plugin to include, as go import path.
	Short names can be used for builtin sources (eg "leasedb")`)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	tpl := defaultTemplate
	if *flagTemplate != "" {
		data, err := os.ReadFile(*flagTemplate)
		if err != nil {
			log.Fatalf("Failed to read template file '%s': %v", *flagTemplate, err)
		}
		tpl = string(data)
	}
	var from io.Reader
	if *flagFromFile != "" {
		// additional plugin names from a text file, one line per plugin import
		// path
		fd, err := os.Open(*flagFromFile)
		if err != nil {
			log.Fatalf("Failed to read file '%s': %v", *flagFromFile, err)
		}
		defer func() {
			if err := fd.Close(); err != nil {
				log.Printf("Error closing file '%s': %v", *flagFromFile, err)
			}
		}()
		from = fd
	}
	pluginList, err := pluginPaths(flag.Args(), from)
	if err != nil {
		log.Fatalf("Error reading file '%s': %v", *flagFromFile, err)
	}
	if len(pluginList) == 0 {
		log.Fatalf("No plugin specified!")
	}
	outfile := *flagOutfile
	if outfile == "" {
		tmpdir, err := os.MkdirTemp("", "dutinfo")
		if err != nil {
			log.Fatalf("Cannot create temporary directory: %v", err)
		}
		outfile = path.Join(tmpdir, "dutinfo.go")
	}

	log.Printf("Generating output file '%s' with %d plugin(s):", outfile, len(pluginList))
	for idx, pl := range pluginList {
		log.Printf("% 3d) %s", idx+1, pl)
	}
	outFD, err := os.OpenFile(outfile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to create output file '%s': %v", outfile, err)
	}
	defer func() {
		if err := outFD.Close(); err != nil {
			log.Printf("Error while closing file descriptor for '%s': %v", outfile, err)
		}
	}()
	if err := generate(outFD, tpl, pluginList); err != nil {
		log.Fatal(err)
	}
	log.Printf("Generated file '%s'. You can build it by running 'go build' in the output directory.", outfile)
	fmt.Println(path.Dir(outfile))
}
