// Package testlist statically discovers test functions in the agent's
// packages. It is the fallback discovery path when `go test -list` cannot be
// used, for example when the toolchain output is polluted by a TestMain.
package testlist

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// TestFunctions takes a package import path and working directory, and returns
// the names of the Test functions declared in that package.
func TestFunctions(pkgPath string, workingDir string) ([]string, error) {
	relPath, err := packageDir(pkgPath, workingDir)
	if err != nil {
		return nil, err
	}

	pkgDir := filepath.Join(workingDir, relPath)
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var testFunctions []string
	fset := token.NewFileSet()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}

			// Test functions start with "Test"; TestMain is the test entrypoint,
			// not a test.
			if strings.HasPrefix(funcDecl.Name.Name, "Test") && funcDecl.Name.Name != "TestMain" {
				testFunctions = append(testFunctions, funcDecl.Name.Name)
			}
		}
	}

	return testFunctions, nil
}

// packageDir resolves an import path to a directory relative to workingDir,
// consulting go.mod when the path is not already relative.
func packageDir(pkgPath string, workingDir string) (string, error) {
	if strings.HasPrefix(pkgPath, "./") {
		return strings.TrimPrefix(pkgPath, "./"), nil
	}

	goModPath := filepath.Join(workingDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}

	moduleName := modFile.Module.Mod.Path
	if moduleName == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}

	if !strings.HasPrefix(pkgPath, moduleName) {
		return "", fmt.Errorf("package %s is not in module %s", pkgPath, moduleName)
	}

	relPath := strings.TrimPrefix(pkgPath, moduleName)
	relPath = strings.TrimPrefix(relPath, "/")
	if relPath == "" {
		relPath = "."
	}
	return relPath, nil
}
