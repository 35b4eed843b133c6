// Package main provides a CLI tool for validating CyberSentinel YAML rule sets.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lancejames221b/CyberSentinelAI/internal/rules"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidateCmd(os.Args[2:])
	case "list":
		runListCmd(os.Args[2:])
	case "classify":
		runClassifyCmd(os.Args[2:])
	case "-version", "--version", "-v":
		fmt.Printf("sentinel-rules %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: sentinel-rules <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  validate  Validate YAML rule files or directories\n")
	fmt.Fprintf(os.Stderr, "  list      List built-in rule sets and those found in files or directories\n")
	fmt.Fprintf(os.Stderr, "  classify  Classify lines from stdin or arguments\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	fmt.Fprintf(os.Stderr, "  -version  Show version and exit\n")
}

func runValidateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show detailed rule set information")
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one path is required\n")
		fmt.Fprintf(os.Stderr, "Usage: sentinel-rules validate [--verbose] <path> [<path>...]\n")
		os.Exit(1)
	}

	os.Exit(runValidate(paths, *verbose))
}

func runListCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	builtin := fs.Bool("builtin", true, "Include built-in rule sets")
	fs.Parse(args)

	os.Exit(runList(fs.Args(), *builtin))
}

func runClassifyCmd(args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	var files multiFlag
	fs.Var(&files, "rules", "Extra rule file or directory (repeatable)")
	fs.Parse(args)

	extra, err := rules.LoadPaths(files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	classifier := rules.NewClassifier(append(rules.MonitorRuleSets(nil), extra...)...)

	lines := fs.Args()
	if len(lines) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
	}

	for _, line := range lines {
		fmt.Println(classifyLine(classifier, line))
	}
}

func classifyLine(c *rules.Classifier, line string) string {
	res, ok := c.Classify(line)
	if !ok {
		return fmt.Sprintf("%-18s  %-15s  %s", "-", "-", line)
	}
	out := fmt.Sprintf("%-18s  %-15s  %s", res.Category, rules.ExtractSource(line), line)
	if res.Category == schema.CategoryCredentialAttack && rules.IsFailedLogin(line) {
		out += "  (+brute_force)"
	}
	return out
}

func runValidate(paths []string, verbose bool) int {
	var totalFiles, validFiles, invalidFiles int

	for _, path := range paths {
		files, err := rules.CollectYAMLFiles(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			invalidFiles++
			continue
		}
		for _, f := range files {
			totalFiles++
			if validateFile(f, verbose) {
				validFiles++
			} else {
				invalidFiles++
			}
		}
	}

	fmt.Printf("\nResults: %d files checked, %d valid, %d invalid\n", totalFiles, validFiles, invalidFiles)

	if invalidFiles > 0 {
		return 1
	}
	return 0
}

func validateFile(path string, verbose bool) bool {
	sets, err := rules.LoadFile(path)
	if err != nil {
		fmt.Printf("  FAIL  %s: %v\n", path, err)
		return false
	}

	fmt.Printf("  OK    %s (%d rule set(s))\n", path, len(sets))

	if verbose {
		for _, set := range sets {
			fmt.Printf("        - [%s] category=%s priority=%d match=%s patterns=%d\n",
				set.Name, set.Category, set.Priority, set.Match, len(set.Patterns))
			if len(set.Tags) > 0 {
				fmt.Printf("          tags: %s\n", strings.Join(set.Tags, ", "))
			}
			if set.MITRE != nil {
				fmt.Printf("          mitre: %s / %s\n", set.MITRE.TacticID, set.MITRE.TechniqueID)
			}
		}
	}

	return true
}

func runList(paths []string, builtin bool) int {
	if builtin {
		for _, set := range rules.MonitorRuleSets(nil) {
			printSet("builtin/monitor", set)
		}
		for _, name := range rules.TargetedWatchers {
			printSet("builtin/targeted", rules.TargetedRuleSet(name))
		}
	}

	status := 0
	for _, path := range paths {
		files, err := rules.CollectYAMLFiles(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
			status = 1
			continue
		}
		for _, f := range files {
			sets, err := rules.LoadFile(f)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Skipping %v\n", err)
				status = 1
				continue
			}
			for _, set := range sets {
				printSet(f, set)
			}
		}
	}
	return status
}

func printSet(origin string, set *rules.RuleSet) {
	fmt.Printf("%-24s  %-18s  pri=%-2d  %-8s  %s\n",
		set.Name, set.Category, set.Priority, set.Match, origin)
}

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
