// Command openapi-compat fails when a revision of the API description drops
// paths, operations or response codes, or adds required parameters, relative
// to a committed baseline.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bearkuang/oristagram/docs"

	"gopkg.in/yaml.v3"
)

var supportedMethods = map[string]struct{}{
	"get": {}, "put": {}, "post": {}, "delete": {}, "patch": {}, "head": {}, "options": {},
}

type parameter struct {
	Name     string `yaml:"name"`
	In       string `yaml:"in"`
	Required bool   `yaml:"required"`
}

type operation struct {
	Parameters []parameter    `yaml:"parameters"`
	Responses  map[string]any `yaml:"responses"`
}

type document struct {
	Paths map[string]map[string]operation
}

func main() {
	basePath := flag.String("base", "", "baseline swagger.json or swagger.yaml")
	revisionPath := flag.String("revision", "", "revision to check; defaults to the description built into this binary")
	flag.Parse()

	if strings.TrimSpace(*basePath) == "" {
		fmt.Fprintln(os.Stderr, "usage: openapi-compat -base <path> [-revision <path>]")
		os.Exit(2)
	}

	base, err := loadFile(*basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base spec: %v\n", err)
		os.Exit(1)
	}

	var revision document
	if *revisionPath == "" {
		revision, err = parse([]byte(docs.SwaggerInfo.ReadDoc()))
	} else {
		revision, err = loadFile(*revisionPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load revision spec: %v\n", err)
		os.Exit(1)
	}

	issues := compare(base, revision)
	if len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "backward compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "- %s\n", issue)
		}
		os.Exit(1)
	}

	fmt.Println("openapi compatibility check passed")
}

func loadFile(path string) (document, error) {
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return document{}, err
	}
	return parse(raw)
}

// parse reads swagger JSON or YAML; JSON is valid YAML. Path-level keys
// other than HTTP methods are ignored.
func parse(raw []byte) (document, error) {
	var rawDoc struct {
		Paths map[string]map[string]yaml.Node `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &rawDoc); err != nil {
		return document{}, err
	}
	if rawDoc.Paths == nil {
		return document{}, fmt.Errorf("missing top-level paths field")
	}

	doc := document{Paths: make(map[string]map[string]operation, len(rawDoc.Paths))}
	for path, entries := range rawDoc.Paths {
		ops := make(map[string]operation)
		for key, node := range entries {
			method := strings.ToLower(strings.TrimSpace(key))
			if _, ok := supportedMethods[method]; !ok {
				continue
			}
			var op operation
			if err := node.Decode(&op); err != nil {
				return document{}, fmt.Errorf("%s %s: %w", method, path, err)
			}
			ops[method] = op
		}
		if len(ops) > 0 {
			doc.Paths[path] = ops
		}
	}
	return doc, nil
}

func requiredParams(op operation) map[string]struct{} {
	out := make(map[string]struct{})
	for _, p := range op.Parameters {
		if p.Required {
			out[p.In+":"+p.Name] = struct{}{}
		}
	}
	return out
}

func compare(base, revision document) []string {
	var issues []string

	for path, baseOps := range base.Paths {
		revOps, ok := revision.Paths[path]
		if !ok {
			issues = append(issues, fmt.Sprintf("removed path: %s", path))
			continue
		}

		for method, baseOp := range baseOps {
			label := strings.ToUpper(method) + " " + path
			revOp, ok := revOps[method]
			if !ok {
				issues = append(issues, "removed operation: "+label)
				continue
			}

			for code := range baseOp.Responses {
				if _, ok := revOp.Responses[code]; !ok {
					issues = append(issues, fmt.Sprintf("removed response code: %s -> %s", label, code))
				}
			}

			before := requiredParams(baseOp)
			for param := range requiredParams(revOp) {
				if _, ok := before[param]; !ok {
					issues = append(issues, fmt.Sprintf("new required parameter: %s -> %s", label, param))
				}
			}
		}
	}

	sort.Strings(issues)
	return issues
}
